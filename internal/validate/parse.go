package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/standardbeagle/shadersense/internal/types"
)

// glslang prints "ERROR: 0:12: 'x' : undeclared identifier"; the source
// name is "0" or "stdin" depending on the version.
var glslangLine = regexp.MustCompile(`(?m)^(ERROR|WARNING|NOTE|INFO|UNIMPLEMENTED): (?:([^:\n]*):(\d+):(?:(\d+):)?)? ?(.*)$`)

// dxc prints "file.hlsl:12:5: error: message" followed by context lines
var dxcLine = regexp.MustCompile(`(?m)^(.*?):(\d+):(\d+): (fatal error|error|warning|note|remark): (.*)$`)

// ParseGlslang turns glslangValidator output into diagnostics. Summary
// lines such as "ERROR: 1 compilation errors" are dropped.
func ParseGlslang(output string) []RawDiagnostic {
	var out []RawDiagnostic
	for _, m := range glslangLine.FindAllStringSubmatch(output, -1) {
		if m[3] == "" {
			continue
		}
		line, _ := strconv.Atoi(m[3])
		col := -1
		if m[4] != "" {
			c, _ := strconv.Atoi(m[4])
			col = c - 1
		}
		out = append(out, RawDiagnostic{
			Line:     max(line-1, 0),
			Column:   col,
			Severity: severityOf(m[1]),
			Message:  strings.TrimSpace(m[5]),
		})
	}
	return out
}

// ParseDxc turns dxc output into diagnostics
func ParseDxc(output string) []RawDiagnostic {
	var out []RawDiagnostic
	for _, m := range dxcLine.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, RawDiagnostic{
			Line:     max(line-1, 0),
			Column:   max(col-1, 0),
			Severity: severityOf(m[4]),
			Message:  strings.TrimSpace(m[5]),
		})
	}
	return out
}

func severityOf(level string) types.Severity {
	l := strings.TrimPrefix(strings.ToLower(level), "fatal ")
	if sev, ok := types.ParseSeverity(l); ok {
		return sev
	}
	switch l {
	case "remark":
		return types.SeverityHint
	case "unimplemented":
		return types.SeverityWarning
	}
	return types.SeverityError
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func itoa(n int) string { return strconv.Itoa(n) }
