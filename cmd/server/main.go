// Package main is the entry point for the workbench server.
//
// main stays minimal: load configuration, build the logger, workspace and
// executor, then hand them to internal/server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/workbench/internal/config"
	"github.com/sakif/workbench/internal/executor"
	"github.com/sakif/workbench/internal/executor/docker"
	"github.com/sakif/workbench/internal/executor/local"
	"github.com/sakif/workbench/internal/server"
	"github.com/sakif/workbench/internal/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: $WORKBENCH_CONFIG or ./workbench.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "workbench: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	// Level was checked by config validation.
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// === 3. WORKSPACE ===
	ws, err := workspace.New(cfg.Workspace.Dir)
	if err != nil {
		return err
	}

	// === 4. EXECUTOR ===
	var exec executor.Executor
	switch cfg.Executor.Backend {
	case config.BackendDocker:
		// The bind mount needs a source directory before the first reset.
		if err := ws.Ensure(); err != nil {
			return err
		}
		dockerCfg := docker.DefaultConfig()
		dockerCfg.Image = cfg.Executor.Docker.Image
		dockerCfg.SkipPull = cfg.Executor.Docker.SkipPull
		dockerCfg.MemoryLimit = cfg.Executor.Docker.MemoryLimit
		dockerCfg.CPULimit = cfg.Executor.Docker.CPULimit
		dockerCfg.PoolSize = cfg.Executor.Docker.PoolSize
		dockerCfg.User = cfg.Executor.Docker.User
		dockerCfg.WorkspaceDir = ws.Root()

		dockerExec, err := docker.New(dockerCfg, logger)
		if err != nil {
			return fmt.Errorf("starting docker executor: %w", err)
		}
		defer dockerExec.Close()
		ws.OnReset(dockerExec)
		exec = dockerExec
	default:
		exec = local.New(logger)
	}

	// === 5. SERVER ===
	srv, err := server.New(cfg, ws, exec, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}
