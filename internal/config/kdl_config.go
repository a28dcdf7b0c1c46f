package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from .shadersense.kdl in dir.
// It returns nil, nil when the file does not exist.
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, KDLFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KDLFileName, err)
	}

	cfg, err := parseKDL(string(content), dir)
	if err != nil {
		return nil, err
	}

	resolveRoot(cfg, dir)
	return cfg, nil
}

// resolveRoot makes the project root absolute, relative to the config file directory
func resolveRoot(cfg *Config, dir string) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = dir
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(dir, cfg.Project.Root)
	}
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	cfg.Project.Root = filepath.Clean(cfg.Project.Root)
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
}

// parseKDL walks the KDL document on top of the defaults
func parseKDL(content, dir string) (*Config, error) {
	cfg := Default(dir)
	cfg.Project.Root = ""
	cfg.Project.Name = ""

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "includes":
			cfg.Includes = append(cfg.Includes, collectStringArgs(n)...)
		case "defines":
			for k, v := range collectDefines(n) {
				cfg.Defines[k] = v
			}
		case "include_mode":
			if s, ok := firstStringArg(n); ok {
				cfg.IncludeMode = IncludeMode(s)
			}
		case "step_into_macros":
			if b, ok := firstBoolArg(n); ok {
				cfg.StepIntoMacros = b
			}
		case "validate":
			if b, ok := firstBoolArg(n); ok {
				cfg.Validate = b
			}
		case "symbols":
			if b, ok := firstBoolArg(n); ok {
				cfg.Symbols = b
			}
		case "severity":
			if s, ok := firstStringArg(n); ok {
				cfg.Severity = s
			}
		case "hlsl":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "shader_model":
					if s, ok := firstStringOrNumber(cn); ok {
						cfg.HLSL.ShaderModel = s
					}
				case "version":
					if s, ok := firstStringOrNumber(cn); ok {
						cfg.HLSL.Version = s
					}
				case "enable_16bit_types":
					if b, ok := firstBoolArg(cn); ok {
						cfg.HLSL.Enable16BitTypes = b
					}
				}
			}
		case "glsl":
			for _, cn := range n.Children {
				assignSimpleString(cn, "client", func(v string) { cfg.GLSL.TargetClient = v })
				assignSimpleString(cn, "spirv", func(v string) { cfg.GLSL.SpirvVersion = v })
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "flatten_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.FlattenWorkers = v
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.DebounceMs = v
					}
				case "validate_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ValidateTimeoutSec = v
					}
				case "max_include_depth":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxIncludeDepth = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.RespectGitignore = b
					}
				case "exclude":
					cfg.Watch.Exclude = append(cfg.Watch.Exclude, collectStringArgs(cn)...)
				}
			}
		case "completion":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "fuzzy_threshold":
					if f, ok := firstFloatArg(cn); ok {
						cfg.Completion.FuzzyThreshold = f
					}
				case "max_results":
					if v, ok := firstIntArg(cn); ok {
						cfg.Completion.MaxResults = v
					}
				}
			}
		case "validators":
			for _, cn := range n.Children {
				assignSimpleString(cn, "glslang", func(v string) { cfg.Validators.Glslang = v })
				assignSimpleString(cn, "dxc", func(v string) { cfg.Validators.Dxc = v })
			}
		default:
			log.Printf("WARNING: unknown node '%s' in %s", nodeName(n), KDLFileName)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

// firstStringOrNumber accepts `shader_model "6.0"` as well as `shader_model 6.0`
func firstStringOrNumber(n *document.Node) (string, bool) {
	if s, ok := firstStringArg(n); ok {
		return s, true
	}
	if len(n.Arguments) == 0 {
		return "", false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	// Inline format: includes "a" "b"
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: includes { "a"; "b" } where each string is a child node name
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

// collectDefines reads `defines { NAME "value"; FLAG }`. A bare flag is defined as empty.
func collectDefines(n *document.Node) map[string]string {
	out := make(map[string]string, len(n.Children))
	for _, child := range n.Children {
		name := nodeName(child)
		if name == "" {
			continue
		}
		value, _ := firstStringOrNumber(child)
		out[name] = value
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
