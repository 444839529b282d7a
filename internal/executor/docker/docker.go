package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/workbench/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New creates a new Docker Executor and initializes the connection.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if !filepath.IsAbs(cfg.WorkspaceDir) {
		return nil, fmt.Errorf("docker: workspace dir must be absolute, got %q", cfg.WorkspaceDir)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if !cfg.SkipPull {
		// Make sure the image is pulled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
		reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
		if err != nil {
			cli.Close()
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		// Read everything to block until the pull is complete
		io.Copy(io.Discard, reader)
		reader.Close()
		logger.Info("docker image is ready")
	}

	exec := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	exec.pool = NewPool(cli, cfg, logger)
	exec.pool.Start()

	return exec, nil
}

// Close shuts down the executor pool and docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// BeforeReset stops the pool from creating containers while the workspace
// directory is being replaced.
func (e *Executor) BeforeReset() {
	e.pool.Hold()
}

// AfterReset discards the containers mounted on the old directory and lets
// the pool refill against the new one.
func (e *Executor) AfterReset() {
	e.pool.Release()
}

// containerDir maps a host directory inside the workspace to its path in the container.
func (e *Executor) containerDir(hostDir string) (string, error) {
	rel, err := filepath.Rel(e.config.WorkspaceDir, hostDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("docker: %s is outside the mounted workspace", hostDir)
	}
	return path.Join(e.config.MountPath, filepath.ToSlash(rel)), nil
}

// Execute runs the program with `docker exec` in a pre-warmed container.
//
// The container is removed afterwards whatever happened, which also kills a
// program still running when ctx expired.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	workDir, err := e.containerDir(req.Dir)
	if err != nil {
		return nil, err
	}

	// Get a pre-warmed container ID from the pool
	containerID, err := e.pool.GetContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}

	// Always ensure we clean up the container that we acquired
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := e.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{
			Force: true,
		})
		if err != nil {
			e.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		User:         e.config.User,
		WorkingDir:   workDir,
		Cmd:          append([]string{req.Program}, req.Args...),
	}

	execResp, err := e.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	res := &executor.ExecutionResult{}

	select {
	case <-done:
		inspectResp, err := e.cli.ContainerExecInspect(context.WithoutCancel(ctx), execResp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect exec: %w", err)
		}
		res.ExitCode = inspectResp.ExitCode
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("running %s: %w", req.Program, ctx.Err())
		}
		// Close the stream so the copier stops before we read its buffers.
		attachResp.Close()
		<-done
		res.TimedOut = true
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
	}

	res.Duration = time.Since(start)
	return res, nil
}
