// Package pathutil converts between the absolute paths used inside the
// workspace and the root-relative paths shown to users.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to a slash-separated path relative
// to rootDir. Paths outside the root, already relative paths and empty
// inputs are returned unchanged.
//
// Examples:
//   - ToRelative("/w/shaders/lighting.hlsli", "/w") → "shaders/lighting.hlsli"
//   - ToRelative("/opt/sdk/include/common.hlsl", "/w") → "/opt/sdk/include/common.hlsl"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" || !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	relPath, err := filepath.Rel(filepath.Clean(rootDir), absPath)
	if err != nil {
		// Different volumes on Windows
		return absPath
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}
	return filepath.ToSlash(relPath)
}

// ToAbsolute resolves path against rootDir unless it is already absolute
func ToAbsolute(path, rootDir string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(rootDir, filepath.FromSlash(path))
}
