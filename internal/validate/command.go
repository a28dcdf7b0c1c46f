package validate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/afero"

	"github.com/standardbeagle/shadersense/internal/debug"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/types"
)

// runTool executes a validator binary and returns its combined output. A
// non-zero exit is expected when the shader has errors and is not an error
// here; failing to start or timing out is.
func runTool(ctx context.Context, backend string, opts Options, stdin []byte, name string, args ...string) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	debug.LogValidate("running %s %s\n", name, strings.Join(args, " "))
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", sserrors.NewValidatorError(backend, ctxErr)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", sserrors.NewValidatorError(backend, err)
	}
	return out.String(), nil
}

// Glslang validates GLSL with glslangValidator reading the unit on stdin
type Glslang struct {
	Executable string
}

func (g *Glslang) Name() string { return "glslang" }

// Args returns the command line used for opts
func (g *Glslang) Args(opts Options) []string {
	args := []string{"--stdin", "-S", GLSLStage(opts.Path)}
	client := strings.ToLower(opts.GLSL.TargetClient)
	if strings.HasPrefix(client, "vulkan") {
		args = append(args, "-V", "--target-env", strings.ReplaceAll(client, "_", "."))
		if spv := strings.ToLower(opts.GLSL.SpirvVersion); strings.HasPrefix(spv, "spv") {
			args = append(args, "--target-env", "spirv"+strings.ReplaceAll(strings.TrimPrefix(spv, "spv"), "_", "."))
		}
		// Validation only, discard the binary
		args = append(args, "-o", os.DevNull)
	} else if strings.HasPrefix(client, "opengl") {
		args = append(args, "-G", "-o", os.DevNull)
	}
	return args
}

// Validate implements Validator
func (g *Glslang) Validate(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) ([]RawDiagnostic, error) {
	out, err := runTool(ctx, g.Name(), opts, text, g.Executable, g.Args(opts)...)
	if err != nil {
		return nil, err
	}
	diags := ParseGlslang(out)
	debug.LogValidate("glslang: %d diagnostics for %s\n", len(diags), opts.Path)
	return diags, nil
}

// Dxc validates HLSL with the DirectX shader compiler. dxc cannot read
// stdin, so the unit is written to a temporary file on Fs.
type Dxc struct {
	Executable string
	Fs         afero.Fs
}

func (d *Dxc) Name() string { return "dxc" }

// Args returns the command line used for opts and input file
func (d *Dxc) Args(opts Options, input string) []string {
	args := []string{"-T", HLSLProfile(opts.HLSL.ShaderModel)}
	if opts.HLSL.Version != "" {
		args = append(args, "-HV", opts.HLSL.Version)
	}
	if opts.HLSL.Enable16BitTypes {
		args = append(args, "-enable-16bit-types")
	}
	return append(args, "-Fo", os.DevNull, input)
}

// Validate implements Validator
func (d *Dxc) Validate(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) ([]RawDiagnostic, error) {
	fs := d.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	tmp, err := afero.TempFile(fs, "", "shadersense-*.hlsl")
	if err != nil {
		return nil, sserrors.NewValidatorError(d.Name(), err)
	}
	name := tmp.Name()
	defer func() { _ = fs.Remove(name) }()
	if _, err := tmp.Write(text); err != nil {
		_ = tmp.Close()
		return nil, sserrors.NewValidatorError(d.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return nil, sserrors.NewValidatorError(d.Name(), err)
	}

	out, err := runTool(ctx, d.Name(), opts, nil, d.Executable, d.Args(opts, name)...)
	if err != nil {
		return nil, err
	}
	diags := ParseDxc(out)
	debug.LogValidate("dxc: %d diagnostics for %s\n", len(diags), opts.Path)
	return diags, nil
}
