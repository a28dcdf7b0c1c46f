package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/shadersense/internal/types"
)

func TestUnresolvedIncludeError(t *testing.T) {
	err := NewUnresolvedIncludeError(3, "/w/root.glsl", "missing.glsl", types.Span{Start: 10, End: 22},
		[]string{"/w/missing.glsl", "/w/inc/missing.glsl"})

	assert.Equal(t, types.FileID(3), err.File)
	assert.Equal(t, `cannot resolve include "missing.glsl" (searched /w/missing.glsl, /w/inc/missing.glsl)`, err.Error())
	assert.Equal(t, types.CodeUnresolvedInclude, Code(err))
}

func TestCyclicIncludeError(t *testing.T) {
	err := NewCyclicIncludeError(1, "/w/b.glsl", "/w/a.glsl", []string{"/w/a.glsl", "/w/b.glsl"})
	assert.Equal(t, "cyclic include of /w/a.glsl: /w/a.glsl -> /w/b.glsl -> /w/a.glsl", err.Error())
	// The stack must not be aliased by Error.
	assert.Len(t, err.Stack, 2)
	assert.Equal(t, types.CodeCyclicInclude, Code(fmt.Errorf("flatten: %w", err)))
}

func TestUnterminatedConditionalError(t *testing.T) {
	err := NewUnterminatedConditionalError(1, "/w/a.glsl", "ifdef", 4)
	assert.Equal(t, "unterminated #ifdef opened at line 5 of /w/a.glsl", err.Error())
	assert.Equal(t, types.CodeUnterminatedConditional, Code(err))
}

func TestPartialParseError(t *testing.T) {
	underlying := errors.New("syntax error")
	err := NewPartialParseError(2, "/w/a.hlsl", types.LanguageHLSL, 5, underlying)

	assert.True(t, errors.Is(err, underlying))
	assert.Contains(t, err.Error(), "partial hlsl parse of /w/a.hlsl (5 symbols recovered)")
	assert.Equal(t, types.CodePartialParse, Code(err))
}

func TestUnknownFileError(t *testing.T) {
	err := NewUnknownFileError("/w/nope.glsl")
	assert.True(t, errors.Is(err, ErrUnknownFile))
	assert.Equal(t, "unknown file: /w/nope.glsl", err.Error())
}

func TestFileError(t *testing.T) {
	err := NewFileError("read", "/w/a.glsl", errors.New("open /w/a.glsl: permission denied"))
	assert.Equal(t, ErrorTypePermission, err.Type)

	err = NewFileError("read", "/w/a.glsl", errors.New("no such file"))
	assert.Equal(t, ErrorTypeFileNotFound, err.Type)
	assert.Equal(t, "file read failed for /w/a.glsl: no such file", err.Error())
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("must be one of once, pragma, always")
	err := NewConfigError("include_mode", "twice", underlying)
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, "config error for field include_mode (value twice): must be one of once, pragma, always", err.Error())
}

func TestMultiError(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	empty := NewMultiError([]error{nil, nil})
	assert.NoError(t, empty.ErrOrNil())
	assert.Equal(t, "no errors", empty.Error())

	single := NewMultiError([]error{nil, first})
	assert.Equal(t, "first", single.Error())

	multi := NewMultiError([]error{first, nil, second})
	assert.Len(t, multi.Errors, 2)
	assert.True(t, errors.Is(multi, second))
	assert.Error(t, multi.ErrOrNil())
}
