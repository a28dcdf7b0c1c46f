package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/wgsl"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/directive"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/types"
)

// Naga validates WGSL in process: naga parses the unit, lowers it to IR and
// runs the IR checks. It needs no executable, so it is always available.
type Naga struct{}

func (Naga) Name() string { return "naga" }

// Validate implements Validator
func (n Naga) Validate(ctx context.Context, text []byte, lang types.LanguageKind, opts Options) (diags []RawDiagnostic, err error) {
	if err := ctx.Err(); err != nil {
		return nil, sserrors.NewValidatorError(n.Name(), err)
	}
	defer func() {
		if r := recover(); r != nil {
			diags, err = nil, sserrors.NewValidatorError(n.Name(), fmt.Errorf("naga panicked: %v", r))
		}
	}()

	src := string(blankDirectiveLines(text, lang))
	ast, err := naga.Parse(src)
	if err != nil {
		diags = nagaDiagnostics(err)
		debug.LogValidate("naga: %d parse diagnostics for %s\n", len(diags), opts.Path)
		return diags, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, sserrors.NewValidatorError(n.Name(), err)
	}

	lowered, err := wgsl.LowerWithWarnings(ast, src)
	if err != nil {
		diags = nagaDiagnostics(err)
		debug.LogValidate("naga: %d lowering diagnostics for %s\n", len(diags), opts.Path)
		return diags, nil
	}
	for _, w := range lowered.Warnings {
		diags = append(diags, spanDiagnostic(w.Span, types.SeverityWarning, w.Message))
	}

	invalid, err := naga.Validate(lowered.Module)
	if err != nil {
		return nil, sserrors.NewValidatorError(n.Name(), err)
	}
	for _, v := range invalid {
		d := RawDiagnostic{Column: -1, Severity: types.SeverityError, Message: v.Error()}
		// IR errors carry no position, only the function they were found in
		for _, fn := range ast.Functions {
			if fn.Name == v.Function {
				d = spanDiagnostic(fn.Span, types.SeverityError, v.Error())
				break
			}
		}
		diags = append(diags, d)
	}
	debug.LogValidate("naga: %d diagnostics for %s\n", len(diags), opts.Path)
	return diags, nil
}

// blankDirectiveLines hides preprocessor lines the flattener left behind,
// keeping line numbers intact
func blankDirectiveLines(text []byte, lang types.LanguageKind) []byte {
	dirs := directive.Scan(text, directive.For(lang))
	if len(dirs) == 0 {
		return text
	}
	out := append([]byte(nil), text...)
	for _, d := range dirs {
		for i := d.Span.Start; i < d.Span.End && i < len(out); i++ {
			if out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
			}
		}
	}
	return out
}

// nagaDiagnostics maps naga's error types to diagnostics. The parser keeps
// only its first error; lowering reports every declaration that failed.
func nagaDiagnostics(err error) []RawDiagnostic {
	var list *wgsl.SourceErrors
	if errors.As(err, &list) && list.Len() > 0 {
		out := make([]RawDiagnostic, 0, list.Len())
		for _, e := range *list {
			out = append(out, spanDiagnostic(e.Span, types.SeverityError, e.Message))
		}
		return out
	}
	var src *wgsl.SourceError
	if errors.As(err, &src) {
		return []RawDiagnostic{spanDiagnostic(src.Span, types.SeverityError, src.Message)}
	}
	var perr wgsl.ParseError
	if errors.As(err, &perr) {
		return []RawDiagnostic{{
			Line:     max(perr.Token.Line-1, 0),
			Column:   max(perr.Token.Column-1, 0),
			Severity: types.SeverityError,
			Message:  perr.Message,
		}}
	}
	return []RawDiagnostic{{Column: -1, Severity: types.SeverityError, Message: err.Error()}}
}

// spanDiagnostic converts naga's one-based span start; line zero means naga
// had no position
func spanDiagnostic(s wgsl.Span, sev types.Severity, msg string) RawDiagnostic {
	if s.Start.Line == 0 {
		return RawDiagnostic{Column: -1, Severity: sev, Message: msg}
	}
	return RawDiagnostic{
		Line:     s.Start.Line - 1,
		Column:   max(s.Start.Column-1, 0),
		Severity: sev,
		Message:  msg,
	}
}
