package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	sserrors "github.com/standardbeagle/shadersense/internal/errors"
)

// createJSONResponse wraps data as the text content of a tool result
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports err inside the result with IsError set, so
// the client model sees the failure and can correct its call
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if hint := errorHint(err); hint != "" {
		errorData["help"] = hint
	}
	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, sserrors.ErrUnknownFile):
		return "path must name a shader file under the project root, absolute or root-relative"
	case errors.Is(err, errMissingPath):
		return `use {"path": "shaders/main.frag", "line": 0, "character": 0}; positions are 0-based`
	}
	return ""
}
