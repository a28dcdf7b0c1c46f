package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/mcp"
	"github.com/standardbeagle/shadersense/internal/query"
	"github.com/standardbeagle/shadersense/internal/watch"
	"github.com/standardbeagle/shadersense/internal/workspace"
)

func mcpCommand(c *cli.Context) error {
	// stdio belongs to the protocol from here on
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	logger := mcp.NewDiagnosticLogger(true)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	fs := afero.NewOsFs()
	var ws *workspace.State
	ws = workspace.New(cfg, workspace.Options{
		Fs: fs,
		OnDiagnostics: func(p workspace.Published) {
			logger.Printf("validated %s: %d files", ws.Registry().Path(p.Root), len(p.Files))
		},
	})
	server := mcp.NewServer(query.New(ws), fs, logger)
	defer server.Close()

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg, watch.Forward(ctx, ws))
		if err != nil {
			logger.Printf("Warning: file watcher unavailable: %v", err)
		} else if err := w.Start(append([]string{cfg.Project.Root}, cfg.IncludeDirs()...)...); err != nil {
			logger.Printf("Warning: failed to start file watcher: %v", err)
			_ = w.Stop()
		} else {
			defer w.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Printf("Received signal %v, shutting down", sig)
		cancel()
		select {
		case err := <-errChan:
			return err
		case <-time.After(2 * time.Second):
			// The stdio transport only notices a closed stdin
			os.Stdin.Close()
			return nil
		}
	}
}
