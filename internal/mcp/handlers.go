package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/query"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
)

var errMissingPath = errors.New("path is required")

// PathParams names a file
type PathParams struct {
	Path string `json:"path"`
}

// PositionParams names a position in a file
type PositionParams struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

func (p PositionParams) position() types.Position {
	return types.Position{Line: p.Line, Character: p.Character}
}

// CompletionParams adds a result cap to a position
type CompletionParams struct {
	PositionParams
	Max int `json:"max,omitempty"`
}

// DiagnosticsParams selects a file and whether to run the validator
type DiagnosticsParams struct {
	Path     string `json:"path"`
	Validate bool   `json:"validate,omitempty"`
}

// FlattenResponse is the result of the flatten tool
type FlattenResponse struct {
	Root        string           `json:"root"`
	Language    string           `json:"language"`
	Text        string           `json:"text"`
	Files       []string         `json:"files"`
	Diagnostics []DiagnosticView `json:"diagnostics"`
}

// DiagnosticView is a diagnostic with a readable severity
type DiagnosticView struct {
	Path     string      `json:"path"`
	Range    types.Range `json:"range"`
	Severity string      `json:"severity"`
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Source   string      `json:"source,omitempty"`
}

// IncludeGraphResponse is the result of the include_graph tool
type IncludeGraphResponse struct {
	Path         string                 `json:"path"`
	Dependencies []workspace.Dependency `json:"dependencies"`
	Includers    []string               `json:"includers"`
}

func decodeArgs(req *mcp.CallToolRequest, v interface{}) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return errMissingPath
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func requirePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errMissingPath
	}
	return nil
}

func viewDiagnostics(diags []types.Diagnostic) []DiagnosticView {
	out := make([]DiagnosticView, 0, len(diags))
	for _, d := range diags {
		out = append(out, DiagnosticView{
			Path:     d.Path,
			Range:    d.Range,
			Severity: d.Severity.String(),
			Code:     string(d.Code),
			Message:  d.Message,
			Source:   d.Source,
		})
	}
	return out
}

func (s *Server) handleFlatten(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("flatten", func() (*mcp.CallToolResult, error) {
		var p PathParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		if err := requirePath(p.Path); err != nil {
			return nil, err
		}
		path, err := s.sync(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		ws := s.Workspace()
		unit, err := ws.Flatten(ctx, path)
		if err != nil {
			return nil, err
		}
		resp := FlattenResponse{
			Root:        path,
			Language:    unit.Language.String(),
			Text:        string(unit.Text),
			Diagnostics: viewDiagnostics(unit.Diagnostics),
		}
		for _, id := range unit.Files {
			if f, ok := ws.FileByID(id); ok {
				resp.Files = append(resp.Files, f.Path)
			}
		}
		debug.LogMCP("flatten %s: %d bytes from %d files\n", path, len(unit.Text), len(resp.Files))
		return createJSONResponse(resp)
	})
}

func (s *Server) positionRequest(ctx context.Context, p *PositionParams) (string, error) {
	if err := requirePath(p.Path); err != nil {
		return "", err
	}
	if p.Line < 0 || p.Character < 0 {
		return "", fmt.Errorf("line and character must be 0-based and non-negative")
	}
	return s.sync(ctx, p.Path)
}

func (s *Server) handleDefinition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("definition", func() (*mcp.CallToolResult, error) {
		var p PositionParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		path, err := s.positionRequest(ctx, &p)
		if err != nil {
			return nil, err
		}
		locs, err := s.facade.Definition(ctx, path, p.position())
		if err != nil {
			return nil, err
		}
		if locs == nil {
			locs = []types.Location{}
		}
		return createJSONResponse(map[string]interface{}{"locations": locs})
	})
}

func (s *Server) handleHover(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("hover", func() (*mcp.CallToolResult, error) {
		var p PositionParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		path, err := s.positionRequest(ctx, &p)
		if err != nil {
			return nil, err
		}
		h, err := s.facade.Hover(ctx, path, p.position())
		if err != nil {
			return nil, err
		}
		if h == nil {
			return createJSONResponse(map[string]interface{}{"found": false})
		}
		return createJSONResponse(map[string]interface{}{
			"found":    true,
			"contents": h.Contents,
			"range":    h.Range,
		})
	})
}

func (s *Server) handleCompletion(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("completion", func() (*mcp.CallToolResult, error) {
		var p CompletionParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		path, err := s.positionRequest(ctx, &p.PositionParams)
		if err != nil {
			return nil, err
		}
		items, err := s.facade.Completion(ctx, path, p.position())
		if err != nil {
			return nil, err
		}
		if p.Max > 0 && len(items) > p.Max {
			items = items[:p.Max]
		}
		type item struct {
			query.CompletionItem
			Kind string `json:"kind"`
		}
		out := make([]item, 0, len(items))
		for _, it := range items {
			out = append(out, item{CompletionItem: it, Kind: it.Kind.String()})
		}
		return createJSONResponse(map[string]interface{}{"items": out})
	})
}

func (s *Server) handleSignatureHelp(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("signature_help", func() (*mcp.CallToolResult, error) {
		var p PositionParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		path, err := s.positionRequest(ctx, &p)
		if err != nil {
			return nil, err
		}
		help, err := s.facade.SignatureHelp(ctx, path, p.position())
		if err != nil {
			return nil, err
		}
		if help == nil {
			return createJSONResponse(map[string]interface{}{"found": false})
		}
		return createJSONResponse(help)
	})
}

func (s *Server) handleDiagnostics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("diagnostics", func() (*mcp.CallToolResult, error) {
		var p DiagnosticsParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		if err := requirePath(p.Path); err != nil {
			return nil, err
		}
		path, err := s.sync(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		var diags []types.Diagnostic
		if p.Validate {
			all, err := s.Workspace().Validate(ctx, path)
			if err != nil {
				return nil, err
			}
			diags = query.FilterSeverity(all, s.cfg.MinSeverity())
		} else if diags, err = s.facade.Diagnostics(ctx, path); err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]interface{}{"diagnostics": viewDiagnostics(diags)})
	})
}

func (s *Server) handleIncludeGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("include_graph", func() (*mcp.CallToolResult, error) {
		var p PathParams
		if err := decodeArgs(req, &p); err != nil {
			return nil, err
		}
		if err := requirePath(p.Path); err != nil {
			return nil, err
		}
		path, err := s.sync(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		ws := s.Workspace()
		deps, err := ws.Dependencies(path)
		if err != nil {
			return nil, err
		}
		includers, err := ws.Includers(path)
		if err != nil {
			return nil, err
		}
		if includers == nil {
			includers = []string{}
		}
		return createJSONResponse(IncludeGraphResponse{Path: path, Dependencies: deps, Includers: includers})
	})
}
