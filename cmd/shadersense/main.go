package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/version"
)

// loadConfigWithOverrides loads the project configuration and applies CLI
// flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", absRoot, err)
	}
	cfg.Project.Root = absRoot

	if includes := c.StringSlice("include"); len(includes) > 0 {
		cfg.Includes = append(cfg.Includes, includes...)
	}
	for _, def := range c.StringSlice("define") {
		name, value, _ := strings.Cut(def, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid define %q: expected NAME or NAME=VALUE", def)
		}
		if cfg.Defines == nil {
			cfg.Defines = make(map[string]string)
		}
		cfg.Defines[name] = value
	}
	if mode := c.String("include-mode"); mode != "" {
		cfg.IncludeMode = config.IncludeMode(mode)
	}
	if c.Bool("step-into-macros") {
		cfg.StepIntoMacros = true
	}
	if sev := c.String("severity"); sev != "" {
		cfg.Severity = sev
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp() *cli.App {
	positionArgs := "FILE LINE COLUMN (1-based)"
	return &cli.App{
		Name:                   "shadersense",
		Usage:                  "Include-aware symbol lookup for HLSL, GLSL and WGSL shaders",
		Version:                version.Info(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root holding .shadersense.kdl or shadersense.toml",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:    "include",
				Aliases: []string{"I"},
				Usage:   "Additional include directory, relative to the root or absolute (repeatable, globs allowed)",
			},
			&cli.StringSliceFlag{
				Name:    "define",
				Aliases: []string{"D"},
				Usage:   "Predefined macro NAME or NAME=VALUE (repeatable)",
			},
			&cli.StringFlag{
				Name:  "include-mode",
				Usage: "How repeated includes are flattened: pragma, once or always",
			},
			&cli.BoolFlag{
				Name:  "step-into-macros",
				Usage: "Map expanded macro text back to the macro body instead of the use site",
			},
			&cli.StringFlag{
				Name:  "severity",
				Usage: "Minimum reported diagnostic severity: error, warning, info or hint",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Print debug logs to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "flatten",
				Usage:     "Print the preprocessed text of a shader with its includes expanded",
				ArgsUsage: "FILE",
				Action:    flattenCommand,
			},
			{
				Name:      "symbols",
				Usage:     "List the declarations visible from a shader and its includes",
				ArgsUsage: "FILE",
				Action:    symbolsCommand,
			},
			{
				Name:      "deps",
				Usage:     "Show the include tree of a shader",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "includers",
						Usage: "List the files including FILE instead",
					},
				},
				Action: depsCommand,
			},
			{
				Name:      "definition",
				Aliases:   []string{"def"},
				Usage:     "Find the declaration of the identifier at a position",
				ArgsUsage: positionArgs,
				Action:    definitionCommand,
			},
			{
				Name:      "hover",
				Usage:     "Describe the symbol at a position",
				ArgsUsage: positionArgs,
				Action:    hoverCommand,
			},
			{
				Name:      "complete",
				Usage:     "List completion candidates at a position",
				ArgsUsage: positionArgs,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"m"},
						Usage:   "Maximum candidates (0 = configured limit)",
					},
				},
				Action: completeCommand,
			},
			{
				Name:      "signature",
				Usage:     "Show the signature of the call surrounding a position",
				ArgsUsage: positionArgs,
				Action:    signatureCommand,
			},
			{
				Name:      "diagnostics",
				Aliases:   []string{"check"},
				Usage:     "Report include, preprocessing and validator problems",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "validate",
						Usage: "Run glslangValidator or dxc on each flattened file",
					},
				},
				Action: diagnosticsCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the workspace as MCP tools over stdio",
				Action: mcpCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
