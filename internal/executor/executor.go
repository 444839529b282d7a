// Package executor runs the external programs behind compile and eval.
//
// Two backends implement Executor: local (a subprocess on the host PATH) and
// docker (a docker exec inside a pre-warmed container that bind-mounts the
// workspace).
package executor

import (
	"context"
	"time"
)

// ExecutionRequest describes one program invocation.
type ExecutionRequest struct {
	// Program is looked up on PATH (local) or inside the image (docker).
	Program string   `json:"program"`
	Args    []string `json:"args"`
	// Dir is the working directory on the host. The docker backend maps it to
	// its mount point.
	Dir string `json:"dir"`
}

// ExecutionResult represents the output and status of the program.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	// TimedOut is set when the context deadline killed the program.
	// ExitCode is meaningless in that case.
	TimedOut bool `json:"timedOut"`
}

// Executor represents the core interface for running a program to completion.
//
// A non-nil error means the program never ran (it could not be found or
// started). A program that ran and failed is a result with a non-zero ExitCode.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
