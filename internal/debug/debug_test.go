package debug

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := MCPMode
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		MCPMode = originalMode
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	MCPMode = false
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	assert.True(t, IsDebugEnabled())

	// MCP mode wins over everything
	MCPMode = true
	assert.False(t, IsDebugEnabled())

	MCPMode = false
	EnableDebug = "false"
	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = false
	Log("TEST", "Hello %s", "World")

	assert.Contains(t, buf.String(), "[DEBUG:TEST] Hello World")
}

func TestLog_MCPMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	SetMCPMode(true)
	Log("TEST", "Should not appear")

	assert.Empty(t, buf.String())
}

func TestLogHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	MCPMode = false

	tests := []struct {
		name    string
		logFunc func(string, ...interface{})
		prefix  string
	}{
		{"LogInclude", LogInclude, "[DEBUG:INCLUDE]"},
		{"LogFlatten", LogFlatten, "[DEBUG:FLATTEN]"},
		{"LogSymbols", LogSymbols, "[DEBUG:SYMBOLS]"},
		{"LogQuery", LogQuery, "[DEBUG:QUERY]"},
		{"LogValidate", LogValidate, "[DEBUG:VALIDATE]"},
		{"LogWatch", LogWatch, "[DEBUG:WATCH]"},
		{"LogMCP", LogMCP, "[DEBUG:MCP]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetDebugOutput(&buf)

			tt.logFunc("message %s", "test")

			assert.Contains(t, buf.String(), tt.prefix+" message test")
		})
	}
}

func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = false

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			LogFlatten("root %d\n", id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, bytes.Count(buf.Bytes(), []byte("[DEBUG:FLATTEN]")))
}

func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetDebugOutput(nil)
	EnableDebug = "true"
	MCPMode = false

	// These should not panic, they should just do nothing
	Printf("test %s", "message")
	Log("TEST", "test %s", "message")
	LogInclude("test %s", "message")
}

func TestInitDebugLogFile(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitDebugLogFile()
	assert.NoError(t, err)
	assert.NotEmpty(t, logPath)
	defer os.Remove(logPath)

	EnableDebug = "true"
	MCPMode = false
	Printf("Test log message\n")

	assert.NoError(t, CloseDebugLog())

	content, err := os.ReadFile(logPath)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "Test log message")
}
