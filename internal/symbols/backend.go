// Package symbols extracts per-file declarations in source coordinates.
// Parsing is delegated to a Backend per language; macros and include
// links come from the shared directive scanner so every language agrees
// on them.
package symbols

import (
	"context"
	"errors"

	"github.com/standardbeagle/shadersense/internal/types"
)

var (
	errGrammarUnavailable = errors.New("grammar unavailable")
	errParseFailed        = errors.New("parser returned no tree")
)

// Result is what a backend recovered from one file. Symbols carry names,
// spans, signatures and scope; the extractor fills in file identity.
type Result struct {
	Symbols []types.Symbol
	// Errors counts syntax error regions the backend skipped
	Errors int
}

// Backend parses file text into declarations. Implementations are
// stateless and safe for concurrent use.
type Backend interface {
	Name() string
	Parse(ctx context.Context, content []byte) (Result, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, content []byte) (Result, error)

func (f BackendFunc) Name() string { return "func" }

func (f BackendFunc) Parse(ctx context.Context, content []byte) (Result, error) {
	return f(ctx, content)
}
