// Package local runs programs as plain subprocesses of the server.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/sakif/workbench/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

const waitDelay = 2 * time.Second

// Executor implements executor.Executor with os/exec.
type Executor struct {
	logger *slog.Logger
}

// New creates a local Executor.
func New(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs the program in req.Dir and waits for it to exit.
//
// The program is killed when ctx is done. If that happened because the
// deadline passed, the result has TimedOut set; plain cancellation (client
// went away) is reported as an error since nobody is left to read the result.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, req.Program, req.Args...)
	cmd.Dir = req.Dir
	// Grandchildren that inherited stdout/stderr would otherwise keep Wait
	// blocked after the kill.
	cmd.WaitDelay = waitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("starting process",
		slog.String("program", req.Program),
		slog.Any("args", req.Args),
		slog.String("dir", req.Dir),
	)

	runErr := cmd.Run()

	res := &executor.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}

	// Context deadline takes precedence over the exit error: a killed process
	// also reports "signal: killed".
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("running %s: %w", req.Program, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// Not found on PATH, missing working directory, permission denied...
	return nil, fmt.Errorf("starting %s: %w", req.Program, runErr)
}
