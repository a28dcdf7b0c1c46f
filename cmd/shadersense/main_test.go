package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/testhelpers"
)

// run executes the CLI with args and returns its stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"shadersense"}, args...))
	return out.String(), err
}

func diskFixture(t *testing.T) *testhelpers.ShaderFixture {
	t.Helper()
	return testhelpers.IncludeLevelFixture(t, t.TempDir()).OnDisk(t)
}

func oneBased(t *testing.T, fx *testhelpers.ShaderFixture, rel, needle string) (string, string) {
	t.Helper()
	p := types.NewLineIndex([]byte(fx.Content(rel))).Position(fx.Offset(t, rel, needle))
	return strconv.Itoa(p.Line + 1), strconv.Itoa(p.Character + 1)
}

func TestParsePosition(t *testing.T) {
	pos, err := parsePosition("3", "5")
	require.NoError(t, err)
	assert.Equal(t, types.Position{Line: 2, Character: 4}, pos)

	_, err = parsePosition("0", "1")
	assert.Error(t, err)
	_, err = parsePosition("1", "x")
	assert.Error(t, err)
}

func TestLoadConfigWithOverrides(t *testing.T) {
	root := t.TempDir()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	app := newApp()
	for _, f := range app.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse([]string{
		"--root", root,
		"-I", "include",
		"-D", "USE_SHADOWS=1",
		"-D", "DEBUG_VIEW",
		"--include-mode", "once",
		"--severity", "warning",
	}))

	cfg, err := loadConfigWithOverrides(cli.NewContext(app, set, nil))
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Project.Root)
	assert.Contains(t, cfg.Includes, "include")
	assert.Equal(t, "1", cfg.Defines["USE_SHADOWS"])
	assert.Equal(t, "", cfg.Defines["DEBUG_VIEW"])
	assert.Equal(t, config.IncludeModeOnce, cfg.IncludeMode)
	assert.Equal(t, types.SeverityWarning, cfg.MinSeverity())
}

func TestFlattenCommand(t *testing.T) {
	fx := diskFixture(t)
	out, err := run(t, "--root", fx.Root, "flatten", fx.Path(testhelpers.IncludeLevelRoot))
	require.NoError(t, err)
	assert.Contains(t, out, "const int level1 = 3;")
	assert.Contains(t, out, "const int level0 = 2;")
	assert.NotContains(t, out, "#include")
	// Deepest include comes first
	assert.Less(t, strings.Index(out, "level1 = 3"), strings.Index(out, "level0 = 2"))
}

func TestDefinitionCommand(t *testing.T) {
	fx := diskFixture(t)
	line, col := oneBased(t, fx, testhelpers.IncludeLevelRoot, "fibonacciLevel1(level1)")
	out, err := run(t, "--root", fx.Root, "definition", fx.Path(testhelpers.IncludeLevelRoot), line, col)
	require.NoError(t, err)
	assert.Equal(t, "inc0/inc1/level1.glsl:3:5\n", out)
}

func TestHoverCommandJSON(t *testing.T) {
	fx := diskFixture(t)
	line, col := oneBased(t, fx, testhelpers.IncludeLevelRoot, "level0)")
	out, err := run(t, "--root", fx.Root, "--json", "hover", fx.Path(testhelpers.IncludeLevelRoot), line, col)
	require.NoError(t, err)

	var h struct {
		Contents string `json:"contents"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.Contains(t, h.Contents, "level0")
	assert.Contains(t, h.Contents, "inc0/level0.glsl:3")
}

func TestDepsCommand(t *testing.T) {
	fx := diskFixture(t)
	out, err := run(t, "--root", fx.Root, "deps", fx.Path(testhelpers.IncludeLevelRoot))
	require.NoError(t, err)
	assert.Equal(t, testhelpers.IncludeLevelRoot+"\n  inc0/level0.glsl\n    inc0/inc1/level1.glsl\n", out)
}

func TestDepsIncluders(t *testing.T) {
	fx := diskFixture(t)
	// A header alone has no known includers
	out, err := run(t, "--root", fx.Root, "deps", "--includers", fx.Path("inc0/inc1/level1.glsl"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompleteCommand(t *testing.T) {
	fx := diskFixture(t)
	line, col := oneBased(t, fx, testhelpers.IncludeLevelRoot, "return r.value")
	out, err := run(t, "--root", fx.Root, "complete", "--max", "3", fx.Path(testhelpers.IncludeLevelRoot), line, col)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "variable"))
}

func TestDiagnosticsCommandFailsOnErrors(t *testing.T) {
	fx := testhelpers.NewShaderFixture(t.TempDir()).
		AddFile(t, "main.frag", "#version 450\n#include \"missing.glsl\"\nvoid main() {}\n").
		OnDisk(t)

	out, err := run(t, "--root", fx.Root, "diagnostics", fx.Path("main.frag"))
	require.Error(t, err)
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, out, "main.frag:2:")
	assert.Contains(t, out, "missing.glsl")
	assert.Contains(t, out, "[unresolved-include]")
}

func TestPositionCommandsValidateArgs(t *testing.T) {
	fx := diskFixture(t)
	_, err := run(t, "--root", fx.Root, "hover", fx.Path(testhelpers.IncludeLevelRoot), "1")
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())

	_, err = run(t, "--root", fx.Root, "flatten", fx.Path("missing.frag"))
	assert.Error(t, err)
}
