package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/query"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
	"github.com/standardbeagle/shadersense/pkg/pathutil"
)

// session is one CLI invocation's workspace. Files named on the command
// line are opened like editor buffers; their includes load from disk.
type session struct {
	cfg    *config.Config
	fs     afero.Fs
	ws     *workspace.State
	facade *query.Facade
	out    io.Writer
	json   bool
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()
	ws := workspace.New(cfg, workspace.Options{Fs: fs})
	return &session{
		cfg:    cfg,
		fs:     fs,
		ws:     ws,
		facade: query.New(ws),
		out:    c.App.Writer,
		json:   c.Bool("json"),
	}, nil
}

func (s *session) Close() error {
	return s.ws.Close()
}

// open reads path from disk and opens it, returning its absolute path
func (s *session) open(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	text, err := afero.ReadFile(s.fs, abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := s.facade.DidOpen(ctx, abs, text, types.LanguageUnknown, 1); err != nil {
		return "", err
	}
	return abs, nil
}

func (s *session) rel(path string) string {
	return pathutil.ToRelative(path, s.cfg.Project.Root)
}

func (s *session) printJSON(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withFile runs fn on the single FILE argument
func withFile(c *cli.Context, fn func(ctx context.Context, s *session, path string) error) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: shadersense %s FILE", c.Command.Name), 2)
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := c.Context
	path, err := s.open(ctx, c.Args().First())
	if err != nil {
		return err
	}
	return fn(ctx, s, path)
}

// withPosition runs fn on FILE LINE COLUMN arguments, converted to 0-based
func withPosition(c *cli.Context, fn func(ctx context.Context, s *session, path string, pos types.Position) error) error {
	if c.NArg() != 3 {
		return cli.Exit(fmt.Sprintf("usage: shadersense %s FILE LINE COLUMN", c.Command.Name), 2)
	}
	pos, err := parsePosition(c.Args().Get(1), c.Args().Get(2))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := c.Context
	path, err := s.open(ctx, c.Args().First())
	if err != nil {
		return err
	}
	return fn(ctx, s, path, pos)
}

func parsePosition(line, col string) (types.Position, error) {
	l, err := strconv.Atoi(line)
	if err != nil || l < 1 {
		return types.Position{}, fmt.Errorf("invalid line %q: expected a 1-based number", line)
	}
	ch, err := strconv.Atoi(col)
	if err != nil || ch < 1 {
		return types.Position{}, fmt.Errorf("invalid column %q: expected a 1-based number", col)
	}
	return types.Position{Line: l - 1, Character: ch - 1}, nil
}

func formatLocation(s *session, path string, r types.Range) string {
	return fmt.Sprintf("%s:%d:%d", s.rel(path), r.Start.Line+1, r.Start.Character+1)
}

func flattenCommand(c *cli.Context) error {
	return withFile(c, func(ctx context.Context, s *session, path string) error {
		unit, err := s.ws.Flatten(ctx, path)
		if err != nil {
			return err
		}
		if s.json {
			files := make([]string, 0, len(unit.Files))
			for _, id := range unit.Files {
				if f, ok := s.ws.FileByID(id); ok {
					files = append(files, s.rel(f.Path))
				}
			}
			return s.printJSON(map[string]interface{}{
				"root":        s.rel(path),
				"language":    unit.Language.String(),
				"files":       files,
				"text":        string(unit.Text),
				"diagnostics": unit.Diagnostics,
			})
		}
		_, err = s.out.Write(unit.Text)
		return err
	})
}

func symbolsCommand(c *cli.Context) error {
	return withFile(c, func(ctx context.Context, s *session, path string) error {
		closure, err := s.ws.Symbols(ctx, path)
		if err != nil {
			return err
		}
		visible := closure.Visible(-1)
		if s.json {
			syms := make([]types.Symbol, 0, len(visible))
			for _, cand := range visible {
				syms = append(syms, cand.Symbol)
			}
			return s.printJSON(syms)
		}
		for _, cand := range visible {
			sym := cand.Symbol
			detail := sym.Signature
			if detail == "" {
				detail = strings.TrimSpace(sym.Type + " " + sym.Name)
			}
			fmt.Fprintf(s.out, "%-8s %-40s %s\n", sym.Kind, detail, formatLocation(s, sym.Path, sym.NameRange))
		}
		return nil
	})
}

func depsCommand(c *cli.Context) error {
	return withFile(c, func(ctx context.Context, s *session, path string) error {
		if c.Bool("includers") {
			includers, err := s.ws.Includers(path)
			if err != nil {
				return err
			}
			if s.json {
				return s.printJSON(includers)
			}
			for _, p := range includers {
				fmt.Fprintln(s.out, s.rel(p))
			}
			return nil
		}
		deps, err := s.ws.Dependencies(path)
		if err != nil {
			return err
		}
		if s.json {
			return s.printJSON(deps)
		}
		for _, d := range deps {
			fmt.Fprintf(s.out, "%s%s\n", strings.Repeat("  ", d.Distance), s.rel(d.Path))
		}
		unit, err := s.ws.Flatten(ctx, path)
		if err != nil {
			return err
		}
		for _, d := range unit.Diagnostics {
			if d.Code == types.CodeUnresolvedInclude || d.Code == types.CodeCyclicInclude {
				fmt.Fprintf(s.out, "%s: %s\n", formatLocation(s, d.Path, d.Range), d.Message)
			}
		}
		return nil
	})
}

func definitionCommand(c *cli.Context) error {
	return withPosition(c, func(ctx context.Context, s *session, path string, pos types.Position) error {
		locs, err := s.facade.Definition(ctx, path, pos)
		if err != nil {
			return err
		}
		if s.json {
			return s.printJSON(locs)
		}
		if len(locs) == 0 {
			return cli.Exit("no definition found", 1)
		}
		for _, l := range locs {
			fmt.Fprintln(s.out, formatLocation(s, l.Path, l.Range))
		}
		return nil
	})
}

func hoverCommand(c *cli.Context) error {
	return withPosition(c, func(ctx context.Context, s *session, path string, pos types.Position) error {
		h, err := s.facade.Hover(ctx, path, pos)
		if err != nil {
			return err
		}
		if s.json {
			return s.printJSON(h)
		}
		if h == nil {
			return cli.Exit("nothing to describe", 1)
		}
		fmt.Fprintln(s.out, h.Contents)
		return nil
	})
}

func completeCommand(c *cli.Context) error {
	return withPosition(c, func(ctx context.Context, s *session, path string, pos types.Position) error {
		items, err := s.facade.Completion(ctx, path, pos)
		if err != nil {
			return err
		}
		if limit := c.Int("max"); limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		if s.json {
			return s.printJSON(items)
		}
		for _, it := range items {
			fmt.Fprintf(s.out, "%-8s %-32s %s\n", it.Kind, it.Label, it.Detail)
		}
		return nil
	})
}

func signatureCommand(c *cli.Context) error {
	return withPosition(c, func(ctx context.Context, s *session, path string, pos types.Position) error {
		help, err := s.facade.SignatureHelp(ctx, path, pos)
		if err != nil {
			return err
		}
		if s.json {
			return s.printJSON(help)
		}
		if help == nil {
			return cli.Exit("not inside a call", 1)
		}
		for i, sig := range help.Signatures {
			marker := " "
			if i == help.ActiveSignature {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %s\n", marker, sig.Label)
		}
		active := help.Signatures[help.ActiveSignature]
		if help.ActiveParameter < len(active.Params) {
			p := active.Params[help.ActiveParameter]
			fmt.Fprintf(s.out, "parameter %d: %s\n", help.ActiveParameter+1, strings.TrimSpace(p.Type+" "+p.Name))
		}
		return nil
	})
}

func diagnosticsCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: shadersense diagnostics FILE...", 2)
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := c.Context

	// Open everything first so headers see their includers
	var paths []string
	for _, arg := range c.Args().Slice() {
		p, err := s.open(ctx, arg)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}

	all := make(map[string][]types.Diagnostic)
	errorsFound := 0
	for _, p := range paths {
		var diags []types.Diagnostic
		if c.Bool("validate") {
			raw, err := s.ws.Validate(ctx, p)
			if err != nil {
				return err
			}
			diags = query.FilterSeverity(raw, s.cfg.MinSeverity())
		} else if diags, err = s.facade.Diagnostics(ctx, p); err != nil {
			return err
		}
		all[s.rel(p)] = diags
		for _, d := range diags {
			if d.Severity == types.SeverityError {
				errorsFound++
			}
			if !s.json {
				fmt.Fprintf(s.out, "%s: %s: %s [%s]\n", formatLocation(s, d.Path, d.Range), d.Severity, d.Message, d.Code)
			}
		}
	}
	if s.json {
		if err := s.printJSON(all); err != nil {
			return err
		}
	}
	if errorsFound > 0 {
		return cli.Exit(fmt.Sprintf("%d error(s)", errorsFound), 1)
	}
	return nil
}
