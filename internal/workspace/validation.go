package workspace

import (
	"context"
	"fmt"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/preprocess"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/validate"
)

// runValidation flattens root, runs its language validator and publishes
// the translated diagnostics. Nothing is published once ctx is cancelled.
func (s *State) runValidation(ctx context.Context, root types.FileID) error {
	unit, err := s.Unit(ctx, root)
	if err != nil {
		return err
	}
	f, ok := s.reg.Get(root)
	if !ok {
		return nil
	}

	var diags []types.Diagnostic
	if v, ok := s.validators.For(unit.Language); ok {
		raw, err := v.Validate(ctx, unit.Text, unit.Language, validate.Options{
			Path:    f.Path,
			HLSL:    s.cfg.HLSL,
			GLSL:    s.cfg.GLSL,
			Timeout: s.validateTimeout(),
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// A broken validator is reported on the root instead of failing the request
			diags = append(diags, s.rootDiagnostic(root, types.SeverityWarning, err.Error()))
		}
		for _, r := range raw {
			diags = append(diags, s.translate(unit, r))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	// An edit may have landed between the validator returning and the lock;
	// its ranges were computed against lines that no longer exist
	if ctx.Err() != nil || !s.open[root] || !s.currentLocked(unit) {
		s.mu.Unlock()
		debug.LogValidate("dropped superseded validation of %s\n", f.Path)
		return ctx.Err()
	}
	s.validated[root] = diags
	s.mu.Unlock()

	debug.LogValidate("published %d validator diagnostics for %s\n", len(diags), f.Path)
	if s.onDiags != nil {
		s.onDiags(s.publication(root, unit, diags))
	}
	return nil
}

// currentLocked reports whether every file read by unit is still at the
// version the unit was built from
func (s *State) currentLocked(unit *preprocess.Unit) bool {
	ids := make([]types.FileID, 0, len(unit.Versions))
	for id := range unit.Versions {
		ids = append(ids, id)
	}
	current := s.reg.Versions(ids)
	for id, v := range unit.Versions {
		if cv, ok := current[id]; !ok || cv != v {
			return false
		}
	}
	return true
}

// publication groups everything known about the files of unit by path, so
// files that lost all their diagnostics are cleared too
func (s *State) publication(root types.FileID, unit *preprocess.Unit, diags []types.Diagnostic) Published {
	p := Published{Root: root, Files: make(map[string][]types.Diagnostic)}
	for _, id := range unit.Files {
		if path := s.reg.Path(id); path != "" {
			p.Files[path] = nil
		}
	}
	for _, d := range unit.Diagnostics {
		p.Files[d.Path] = append(p.Files[d.Path], d)
	}
	for _, d := range diags {
		p.Files[d.Path] = append(p.Files[d.Path], d)
	}
	return p
}

// translate maps a validator message from flattened lines back to the
// source file and range that produced it
func (s *State) translate(unit *preprocess.Unit, r validate.RawDiagnostic) types.Diagnostic {
	line := min(max(r.Line, 0), max(unit.Lines.LineCount()-1, 0))
	start := unit.Lines.LineStart(line)
	end := unit.Lines.LineStart(line + 1)
	if line+1 >= unit.Lines.LineCount() {
		end = len(unit.Text)
	}
	for end > start && (unit.Text[end-1] == '\n' || unit.Text[end-1] == '\r') {
		end--
	}
	flat := start
	if r.Column >= 0 {
		flat = min(start+r.Column, end)
	}

	loc, ok := unit.Map.ToSource(flat)
	if !ok {
		return s.rootDiagnostic(unit.Root, r.Severity, r.Message)
	}
	f, ok := s.reg.Get(loc.File)
	if !ok {
		return s.rootDiagnostic(unit.Root, r.Severity, r.Message)
	}

	span := types.Span{Start: loc.Offset, End: loc.Offset}
	if r.Column < 0 {
		// Whole line in the source file
		p := f.Lines.Position(loc.Offset)
		span.Start = f.Lines.LineStart(p.Line)
		span.End = lineEnd(f.Content, span.Start)
	} else if endLoc, ok := unit.Map.ToSource(end); ok && endLoc.File == loc.File && endLoc.Offset > loc.Offset {
		span.End = min(endLoc.Offset, lineEnd(f.Content, loc.Offset))
	}
	return types.Diagnostic{
		File:     f.ID,
		Path:     f.Path,
		Span:     span,
		Range:    f.Lines.Range(span),
		Severity: r.Severity,
		Code:     types.CodeValidator,
		Message:  r.Message,
		Source:   fmt.Sprintf("%s-%s", preprocess.DiagnosticSource, unit.Language),
	}
}

func (s *State) rootDiagnostic(root types.FileID, sev types.Severity, msg string) types.Diagnostic {
	f, _ := s.reg.Get(root)
	d := types.Diagnostic{File: root, Severity: sev, Code: types.CodeValidator, Message: msg, Source: preprocess.DiagnosticSource}
	if f != nil {
		d.Path = f.Path
		d.Span = types.Span{Start: 0, End: lineEnd(f.Content, 0)}
		d.Range = f.Lines.Range(d.Span)
	}
	return d
}

func lineEnd(content []byte, off int) int {
	for off < len(content) && content[off] != '\n' && content[off] != '\r' {
		off++
	}
	return off
}
