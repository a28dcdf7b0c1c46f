// Package mcp exposes the shader workspace as Model Context Protocol tools
// over stdio
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/standardbeagle/shadersense/internal/config"
	ssdebug "github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/query"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/version"
	"github.com/standardbeagle/shadersense/internal/workspace"
	"github.com/standardbeagle/shadersense/pkg/pathutil"
)

// Server serves the query facade of one workspace. Files named by tool
// calls are read from disk and opened on first use, then re-synced on
// every later call.
type Server struct {
	facade *query.Facade
	cfg    *config.Config
	fs     afero.Fs
	server *mcp.Server
	logger *DiagnosticLogger

	mu       sync.Mutex
	versions map[string]int32
}

// NewServer creates a server over facade. fs is where tool paths are read
// from; nil means the OS file system.
func NewServer(facade *query.Facade, fs afero.Fs, logger *DiagnosticLogger) *Server {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = NoOpLogger
	}
	s := &Server{
		facade:   facade,
		cfg:      facade.Workspace().Config(),
		fs:       fs,
		logger:   logger,
		versions: make(map[string]int32),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "shadersense",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

var positionProperties = map[string]*jsonschema.Schema{
	"path": {
		Type:        "string",
		Description: "Shader file, absolute or relative to the project root",
	},
	"line": {
		Type:        "integer",
		Description: "0-based line",
	},
	"character": {
		Type:        "integer",
		Description: "0-based byte column",
	},
}

var pathProperties = map[string]*jsonschema.Schema{
	"path": positionProperties["path"],
}

func withProperties(base map[string]*jsonschema.Schema, extra map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "flatten",
		Description: "Expand #include directives of a shader root into the single text a compiler sees, with preprocessing diagnostics",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: pathProperties,
			Required:   []string{"path"},
		},
	}, s.handleFlatten)

	s.server.AddTool(&mcp.Tool{
		Name:        "definition",
		Description: "Find the declaration of the identifier at a position, across included files",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: positionProperties,
			Required:   []string{"path", "line", "character"},
		},
	}, s.handleDefinition)

	s.server.AddTool(&mcp.Tool{
		Name:        "hover",
		Description: "Describe the symbol at a position: signature, kind and declaring file",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: positionProperties,
			Required:   []string{"path", "line", "character"},
		},
	}, s.handleHover)

	s.server.AddTool(&mcp.Tool{
		Name:        "completion",
		Description: "List symbols visible at a position, ranked by scope and include distance; members after '.'",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: withProperties(positionProperties, map[string]*jsonschema.Schema{
				"max": {
					Type:        "integer",
					Description: "Maximum items (defaults to the configured limit)",
				},
			}),
			Required: []string{"path", "line", "character"},
		},
	}, s.handleCompletion)

	s.server.AddTool(&mcp.Tool{
		Name:        "signature_help",
		Description: "Describe the function or macro call surrounding a position and its active parameter",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: positionProperties,
			Required:   []string{"path", "line", "character"},
		},
	}, s.handleSignatureHelp)

	s.server.AddTool(&mcp.Tool{
		Name:        "diagnostics",
		Description: "Report include and preprocessing problems of a file, optionally running the configured validator first",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: withProperties(pathProperties, map[string]*jsonschema.Schema{
				"validate": {
					Type:        "boolean",
					Description: "Run glslangValidator or dxc on the flattened unit before reporting",
				},
			}),
			Required: []string{"path"},
		},
	}, s.handleDiagnostics)

	s.server.AddTool(&mcp.Tool{
		Name:        "include_graph",
		Description: "List the files a shader includes (pre-order, with distance) and the files that include it",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: pathProperties,
			Required:   []string{"path"},
		},
	}, s.handleIncludeGraph)
}

// absPath resolves path against the project root
func (s *Server) absPath(path string) string {
	return pathutil.ToAbsolute(path, s.cfg.Project.Root)
}

// sync reads path from disk and hands it to the workspace, opening it on
// first use. Unchanged content is a no-op in the workspace.
func (s *Server) sync(ctx context.Context, path string) (string, error) {
	abs := s.absPath(path)
	text, err := afero.ReadFile(s.fs, abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, opened := s.versions[abs]
	v++
	if opened {
		err = s.facade.DidChange(ctx, abs, text, v)
	} else {
		err = s.facade.DidOpen(ctx, abs, text, types.LanguageUnknown, v)
	}
	if err != nil {
		return "", err
	}
	s.versions[abs] = v
	return abs, nil
}

// recoverFromPanic turns handler panics and errors into error results
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("PANIC RECOVERED in %s: %v\n%s", operation, r, debug.Stack())
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()
	result, err = handler()
	if err != nil {
		s.logger.Printf("Error in %s: %v", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	ssdebug.SetMCPMode(true)
	s.logger.Printf("Starting MCP server with stdio transport, root %s", s.cfg.Project.Root)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Workspace returns the served workspace
func (s *Server) Workspace() *workspace.State {
	return s.facade.Workspace()
}

// Close releases the workspace and the log file
func (s *Server) Close() error {
	s.logger.Printf("MCP server shutdown")
	err := s.facade.Workspace().Close()
	if cerr := s.logger.Close(); err == nil {
		err = cerr
	}
	return err
}
