// Package preprocess flattens a root shader file and its includes into one
// translation unit, evaluating conditionals and expanding macros while
// recording a position map back to every source file.
package preprocess

import (
	"bytes"
	"context"
	"strings"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/directive"
	sserrors "github.com/standardbeagle/shadersense/internal/errors"
	"github.com/standardbeagle/shadersense/internal/include"
	"github.com/standardbeagle/shadersense/internal/posmap"
	"github.com/standardbeagle/shadersense/internal/registry"
	"github.com/standardbeagle/shadersense/internal/types"
)

// DiagnosticSource tags diagnostics produced by flattening
const DiagnosticSource = "shadersense"

// Source provides file snapshots and resolved include edges
type Source interface {
	File(id types.FileID) (*registry.File, error)
	Edges(id types.FileID) []include.Edge
}

// Options control one flatten pass
type Options struct {
	IncludeMode config.IncludeMode
	// Defines seed the macro table before the root is read
	Defines        map[string]string
	StepIntoMacros bool
	MaxDepth       int
}

// Unit is the result of flattening one root
type Unit struct {
	Root        types.FileID
	Language    types.LanguageKind
	Text        []byte
	Map         *posmap.Map
	Lines       *types.LineIndex
	Diagnostics []types.Diagnostic
	// Files lists emitted files in order of first emission
	Files []types.FileID
	// Versions records the snapshot version of every file read by the pass
	Versions map[types.FileID]uint64
	// Macros are the definitions live at the end of the pass
	Macros []*Macro
}

// Contains reports whether the unit read file
func (u *Unit) Contains(file types.FileID) bool {
	_, ok := u.Versions[file]
	return ok
}

type reportKey struct {
	file types.FileID
	off  int
}

type condFrame struct {
	active       bool
	taken        bool
	parentActive bool
	elseSeen     bool
	file         *registry.File
	dir          *directive.Directive
}

type flattener struct {
	ctx      context.Context
	src      Source
	opts     Options
	out      bytes.Buffer
	pm       *posmap.Builder
	macros   *MacroTable
	x        *expander
	stack    []*registry.File
	emitted  map[types.FileID]bool
	once     map[types.FileID]bool // files that declared #pragma once
	files    map[types.FileID]*registry.File
	order    []types.FileID
	reported map[reportKey]bool
	diags    []types.Diagnostic
}

// Flatten produces the translation unit of root. Include problems become
// diagnostics on the unit; only cancellation or an unknown root is an error.
func Flatten(ctx context.Context, src Source, root types.FileID, opts Options) (*Unit, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = types.DefaultMaxIncludeDepth
	}
	if opts.IncludeMode == "" {
		opts.IncludeMode = config.IncludeModePragma
	}
	macros := NewMacroTable(opts.Defines)
	fl := &flattener{
		ctx:      ctx,
		src:      src,
		opts:     opts,
		pm:       posmap.NewBuilder(),
		macros:   macros,
		x:        &expander{macros: macros},
		emitted:  make(map[types.FileID]bool),
		once:     make(map[types.FileID]bool),
		files:    make(map[types.FileID]*registry.File),
		reported: make(map[reportKey]bool),
	}

	rootFile, err := fl.load(root)
	if err != nil {
		return nil, err
	}
	if err := fl.emitFile(rootFile); err != nil {
		return nil, err
	}

	text := fl.out.Bytes()
	u := &Unit{
		Root:        root,
		Language:    rootFile.Language,
		Text:        text,
		Map:         fl.pm.Build(),
		Lines:       types.NewLineIndex(text),
		Diagnostics: fl.diags,
		Files:       fl.order,
		Versions:    make(map[types.FileID]uint64, len(fl.files)),
		Macros:      macros.Macros(),
	}
	for id, f := range fl.files {
		u.Versions[id] = f.Version
	}
	debug.LogFlatten("flattened %s: %d bytes, %d files, %d diagnostics\n",
		rootFile.Path, len(text), len(u.Files), len(u.Diagnostics))
	return u, nil
}

func (fl *flattener) load(id types.FileID) (*registry.File, error) {
	if f, ok := fl.files[id]; ok {
		return f, nil
	}
	f, err := fl.src.File(id)
	if err != nil {
		if f == nil || fl.ctx.Err() != nil {
			return nil, err
		}
		// Unreadable files flatten as whatever snapshot the registry kept
		debug.LogFlatten("reading %s: %v\n", f.Path, err)
	}
	fl.files[id] = f
	return f, nil
}

func (fl *flattener) emitFile(f *registry.File) error {
	if err := fl.ctx.Err(); err != nil {
		return err
	}
	fl.stack = append(fl.stack, f)
	defer func() { fl.stack = fl.stack[:len(fl.stack)-1] }()
	if !fl.emitted[f.ID] {
		fl.emitted[f.ID] = true
		fl.order = append(fl.order, f.ID)
	}
	occ := fl.pm.Begin(f.ID)

	edges := make(map[int]*include.Edge)
	for _, e := range fl.src.Edges(f.ID) {
		e := e
		edges[e.Span.Start] = &e
	}

	var conds []*condFrame
	active := func() bool { return len(conds) == 0 || conds[len(conds)-1].active }

	blockStart, blockComment := -1, false
	flush := func(end int) {
		if blockStart >= 0 {
			fl.emitCode(f, occ, blockStart, end, blockComment)
			blockStart = -1
		}
	}

	lines := directive.Split(f.Content, directive.For(f.Language))
	for _, line := range lines {
		d := line.Directive
		if d == nil {
			if active() {
				if blockStart < 0 {
					blockStart, blockComment = line.Start, line.InComment
				}
			} else {
				fl.pm.Marker(occ, f.ID, line.Start, line.Next)
			}
			continue
		}
		flush(line.Start)

		if d.Kind.IsConditional() {
			visible := fl.conditional(f, d, &conds)
			fl.emitDirective(f, occ, line, visible)
			continue
		}
		if !active() {
			fl.pm.Marker(occ, f.ID, line.Start, line.Next)
			continue
		}

		switch d.Kind {
		case directive.KindDefine:
			if m, ok := ParseDefine(d.Args, d.ArgsStart, d.Span.End, f.ID); ok {
				fl.macros.Define(m)
			} else {
				fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "invalid #define")
			}
			fl.emitDirective(f, occ, line, true)
		case directive.KindUndef:
			name := strings.TrimSpace(d.Args)
			if i := strings.IndexAny(name, " \t"); i >= 0 {
				name = name[:i]
			}
			fl.macros.Undef(name)
			fl.emitDirective(f, occ, line, true)
		case directive.KindInclude:
			if err := fl.include(f, occ, line, edges[line.Start]); err != nil {
				return err
			}
		case directive.KindPragma:
			if d.IsPragmaOnce() {
				if fl.opts.IncludeMode != config.IncludeModeAlways {
					fl.once[f.ID] = true
				}
				fl.emitDirective(f, occ, line, true)
			} else {
				fl.passThrough(f, occ, line)
			}
		default:
			fl.passThrough(f, occ, line)
		}
	}
	flush(len(f.Content))

	for i := len(conds) - 1; i >= 0; i-- {
		c := conds[i]
		line := f.Lines.Position(c.dir.Span.Start).Line
		err := sserrors.NewUnterminatedConditionalError(f.ID, f.Path, c.dir.Keyword, line)
		fl.report(f, c.dir.Span, types.SeverityError, types.CodeUnterminatedConditional, err.Error())
	}
	return nil
}

// conditional updates the conditional stack for d and reports whether the
// directive line itself sits in an active region.
func (fl *flattener) conditional(f *registry.File, d *directive.Directive, conds *[]*condFrame) bool {
	stack := *conds
	var top *condFrame
	if n := len(stack); n > 0 {
		top = stack[n-1]
	}
	switch d.Kind {
	case directive.KindIfdef, directive.KindIfndef, directive.KindIf:
		parent := top == nil || top.active
		cond := false
		if parent {
			cond = fl.evaluate(f, d)
		}
		*conds = append(stack, &condFrame{active: cond, taken: cond, parentActive: parent, file: f, dir: d})
		return parent
	}

	if top == nil {
		fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "#"+d.Keyword+" without #if")
		return true
	}
	switch d.Kind {
	case directive.KindElif:
		if top.elseSeen {
			fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "#elif after #else")
		}
		if top.parentActive && !top.taken {
			top.active = fl.evaluate(f, d)
			top.taken = top.active
		} else {
			top.active = false
		}
	case directive.KindElse:
		if top.elseSeen {
			fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "#else after #else")
		}
		top.active = top.parentActive && !top.taken
		top.taken = true
		top.elseSeen = true
	case directive.KindEndif:
		*conds = stack[:len(stack)-1]
	}
	return top.parentActive
}

func (fl *flattener) evaluate(f *registry.File, d *directive.Directive) bool {
	switch d.Kind {
	case directive.KindIfdef, directive.KindIfndef:
		name := strings.TrimSpace(d.Args)
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			name = name[:i]
		}
		if name == "" {
			fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "#"+d.Keyword+" requires a macro name")
			return false
		}
		return fl.macros.Defined(name) == (d.Kind == directive.KindIfdef)
	}
	fl.x.line = f.Lines.Position(d.Span.Start).Line
	ok, err := fl.x.evalCondition(d.Args)
	if err != nil {
		fl.report(f, d.Span, types.SeverityError, types.CodeDirective, "#"+d.Keyword+": "+err.Error())
		return false
	}
	return ok
}

// include emits the target of edge in place of the directive line
func (fl *flattener) include(f *registry.File, occ int, line directive.Line, edge *include.Edge) error {
	d := line.Directive
	if edge == nil {
		// Edges lag behind content; treat as unresolved without search info
		err := sserrors.NewUnresolvedIncludeError(f.ID, f.Path, d.Path, d.Span, nil)
		fl.report(f, d.Span, types.SeverityError, types.CodeUnresolvedInclude, err.Error())
		fl.emitDirective(f, occ, line, true)
		return nil
	}
	if !edge.Resolved() {
		fl.report(f, d.Span, types.SeverityError, types.CodeUnresolvedInclude, edge.Unresolved.Error())
		fl.emitDirective(f, occ, line, true)
		return nil
	}

	target, err := fl.load(edge.Target)
	if err != nil {
		return err
	}
	for _, open := range fl.stack {
		if open.ID == target.ID {
			chain := make([]string, 0, len(fl.stack))
			for _, s := range fl.stack {
				chain = append(chain, s.Path)
			}
			cerr := sserrors.NewCyclicIncludeError(f.ID, f.Path, target.Path, chain)
			fl.report(f, d.Span, types.SeverityError, types.CodeCyclicInclude, cerr.Error())
			fl.emitDirective(f, occ, line, true)
			return nil
		}
	}
	if len(fl.stack) >= fl.opts.MaxDepth {
		fl.report(f, d.Span, types.SeverityError, types.CodeIncludeDepth, "include depth limit exceeded at "+target.Path)
		fl.emitDirective(f, occ, line, true)
		return nil
	}

	switch fl.opts.IncludeMode {
	case config.IncludeModeOnce:
		if fl.emitted[target.ID] {
			fl.emitDirective(f, occ, line, true)
			return nil
		}
	case config.IncludeModePragma:
		if fl.once[target.ID] && fl.emitted[target.ID] {
			fl.emitDirective(f, occ, line, true)
			return nil
		}
	}

	fl.pm.Marker(occ, f.ID, line.Start, line.End)
	if err := fl.emitFile(target); err != nil {
		return err
	}
	if line.Next > line.End {
		if b := fl.out.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
			fl.out.WriteByte('\n')
			fl.pm.Add(occ, f.ID, line.End, line.Next, 1)
		} else {
			fl.pm.Marker(occ, f.ID, line.End, line.Next)
		}
	}
	return nil
}

// emitDirective replaces a consumed directive line with its newlines so
// line structure survives, or records a marker when the line is inactive.
func (fl *flattener) emitDirective(f *registry.File, occ int, line directive.Line, visible bool) {
	n := line.Newlines(f.Content)
	if !visible || n == 0 {
		fl.pm.Marker(occ, f.ID, line.Start, line.Next)
		return
	}
	fl.out.WriteString(strings.Repeat("\n", n))
	fl.pm.Add(occ, f.ID, line.Start, line.Next, n)
}

// passThrough copies a directive the compiler must see, such as #version
func (fl *flattener) passThrough(f *registry.File, occ int, line directive.Line) {
	fl.out.Write(f.Content[line.Start:line.Next])
	fl.pm.Add(occ, f.ID, line.Start, line.Next, line.Next-line.Start)
}

// emitCode copies active source text [start, end) and expands macro invocations in it
func (fl *flattener) emitCode(f *registry.File, occ, start, end int, inComment bool) {
	s := string(f.Content[start:end])
	verbatim, i := 0, 0
	if inComment {
		if k := strings.Index(s, "*/"); k >= 0 {
			i = k + 2
		} else {
			i = len(s)
		}
	}
	for i < len(s) {
		kind, tokEnd := scanToken(s, i)
		if kind != tokIdent {
			i = tokEnd
			continue
		}
		name := s[i:tokEnd]
		if name != "__LINE__" && !fl.macros.Defined(name) {
			i = tokEnd
			continue
		}
		fl.x.line = f.Lines.Position(start + i).Line
		repl, next, ok := fl.x.expandIdent(s, i, tokEnd, nil, 0)
		if !ok {
			i = tokEnd
			continue
		}
		fl.emitVerbatim(f, occ, start+verbatim, start+i)
		// Keep the line count when an invocation spans lines
		if n := strings.Count(s[i:next], "\n"); n > 0 {
			repl += strings.Repeat("\n", n)
		}
		fl.emitExpansion(f, occ, name, start+i, start+next, repl)
		i, verbatim = next, next
	}
	fl.emitVerbatim(f, occ, start+verbatim, end)
}

func (fl *flattener) emitVerbatim(f *registry.File, occ, start, end int) {
	if end <= start {
		return
	}
	fl.out.Write(f.Content[start:end])
	fl.pm.Add(occ, f.ID, start, end, end-start)
}

func (fl *flattener) emitExpansion(f *registry.File, occ int, name string, start, end int, repl string) {
	fl.out.WriteString(repl)
	if fl.opts.StepIntoMacros {
		if m, ok := fl.macros.Lookup(name); ok && m.File != types.InvalidFileID && m.BodySpan.Len() > 0 {
			fl.pm.Marker(occ, f.ID, start, end)
			fl.pm.Add(posmap.NoOccurrence, m.File, m.BodySpan.Start, m.BodySpan.End, len(repl))
			return
		}
	}
	fl.pm.Add(occ, f.ID, start, end, len(repl))
}

func (fl *flattener) report(f *registry.File, span types.Span, sev types.Severity, code types.DiagnosticCode, msg string) {
	key := reportKey{file: f.ID, off: span.Start}
	if code == types.CodeUnterminatedConditional {
		key.off = -span.Start - 1
	}
	if fl.reported[key] {
		return
	}
	fl.reported[key] = true
	fl.diags = append(fl.diags, types.Diagnostic{
		File:     f.ID,
		Path:     f.Path,
		Span:     span,
		Range:    f.Lines.Range(span),
		Severity: sev,
		Code:     code,
		Message:  msg,
		Source:   DiagnosticSource,
	})
}
