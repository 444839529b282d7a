// Package service contains the business logic layer of the workbench.
//
// THE LAYERS:
//
//	Handler / MCP tools  → decode requests, encode ActionResults
//	ActionService        → validates, runs one action, records it
//	Workspace / Executor / Repository → filesystem, subprocesses, history
//
// Both the HTTP handlers and the MCP tools call the same ActionService, so
// the rules for what an action does (and what it reports) live in one place.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/workbench/internal/apperror"
	"github.com/sakif/workbench/internal/executor"
	"github.com/sakif/workbench/internal/metrics"
	"github.com/sakif/workbench/internal/model"
	"github.com/sakif/workbench/internal/repository"
	"github.com/sakif/workbench/internal/workspace"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Options configures the programs an ActionService runs.
type Options struct {
	Compiler string
	Runtime  string
	// Timeout bounds each compile and eval. Zero means no deadline.
	Timeout time.Duration
}

// ActionService performs workspace actions.
//
// Every action method returns an Outcome and a nil error once it has been
// attempted, whatever happened to the subprocess or the filesystem. A non-nil
// error means the request itself was invalid (an absent field) and nothing ran.
type ActionService struct {
	ws     *workspace.Workspace
	exec   executor.Executor
	repo   repository.ActionRepository // nil when history is disabled
	opts   Options
	logger *slog.Logger
}

// NewActionService creates an ActionService. repo may be nil.
func NewActionService(ws *workspace.Workspace, exec executor.Executor, repo repository.ActionRepository, opts Options, logger *slog.Logger) *ActionService {
	return &ActionService{
		ws:     ws,
		exec:   exec,
		repo:   repo,
		opts:   opts,
		logger: logger,
	}
}

// Compile runs `<compiler> --yes <filename> --output <output>` in the workspace.
func (s *ActionService) Compile(ctx context.Context, filename, output string) (model.Outcome, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.Required("filename")
	}
	if strings.TrimSpace(output) == "" {
		return nil, apperror.Required("output")
	}

	start := s.begin()
	outcome := s.confined(filename, output)
	if outcome == nil {
		outcome = s.run(ctx, s.opts.Compiler, "--yes", filename, "--output", output)
	}
	s.finish(ctx, model.ActionCompile, filename, output, start, outcome)
	return outcome, nil
}

// Evaluate runs `<runtime> <filename>` in the workspace.
func (s *ActionService) Evaluate(ctx context.Context, filename string) (model.Outcome, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.Required("filename")
	}

	start := s.begin()
	outcome := s.confined(filename)
	if outcome == nil {
		outcome = s.run(ctx, s.opts.Runtime, filename)
	}
	s.finish(ctx, model.ActionEval, filename, "", start, outcome)
	return outcome, nil
}

// WriteFile overwrites filename with content. content is a pointer so an
// absent field can be told apart from an empty file.
func (s *ActionService) WriteFile(ctx context.Context, filename string, content *string) (model.Outcome, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.Required("filename")
	}
	if content == nil {
		return nil, apperror.Required("content")
	}

	start := s.begin()
	var outcome model.Outcome = model.Ok{}
	if err := s.ws.WriteFile(filename, []byte(*content)); err != nil {
		outcome = model.IoFailure{Description: err.Error()}
	}
	s.finish(ctx, model.ActionWriteFile, filename, "", start, outcome)
	return outcome, nil
}

// ReadFile returns the contents of filename as stdout.
func (s *ActionService) ReadFile(ctx context.Context, filename string) (model.Outcome, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.Required("filename")
	}

	start := s.begin()
	var outcome model.Outcome
	data, err := s.ws.ReadFile(filename)
	if err != nil {
		outcome = model.IoFailure{Description: err.Error()}
	} else {
		outcome = model.Ok{Stdout: string(data)}
	}
	s.finish(ctx, model.ActionReadFile, filename, "", start, outcome)
	return outcome, nil
}

// Reset deletes the workspace and recreates it empty.
//
// Success joins the (empty) output of both steps with a newline, so stdout
// and stderr are each "\n". A failed delete reports code 1 and a failed
// recreate code 2, with stderr naming the step.
func (s *ActionService) Reset(ctx context.Context) (model.Outcome, error) {
	start := s.begin()
	var outcome model.Outcome = model.Ok{Stdout: "\n", Stderr: "\n"}
	if err := s.ws.Reset(); err != nil {
		failure := model.IoFailure{Description: err.Error()}
		var resetErr *workspace.ResetError
		if errors.As(err, &resetErr) && resetErr.Step == workspace.StepRecreate {
			failure.Code = model.CodeRecreateFailure
		}
		outcome = failure
	}
	s.finish(ctx, model.ActionReset, "", "", start, outcome)
	return outcome, nil
}

// History returns recorded actions, newest first.
// limit is clamped to 1..MaxHistoryLimit (default DefaultHistoryLimit).
func (s *ActionService) History(ctx context.Context, limit, offset int) ([]model.ActionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	if s.repo == nil {
		return []model.ActionRecord{}, nil
	}

	records, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list history", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return records, nil
}

// Record returns one recorded action.
func (s *ActionService) Record(ctx context.Context, id string) (*model.ActionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.Required("id")
	}
	if s.repo == nil {
		return nil, apperror.NotFound("action", id)
	}
	return s.repo.GetByID(ctx, id)
}

// confined checks that every name stays inside the workspace. It returns nil
// when they all do, or the IoFailure to report instead of running anything.
func (s *ActionService) confined(names ...string) model.Outcome {
	for _, name := range names {
		if _, err := s.ws.Resolve(name); err != nil {
			return model.IoFailure{Description: err.Error()}
		}
	}
	return nil
}

// run executes program under the shared workspace lock and the action deadline.
func (s *ActionService) run(ctx context.Context, program string, args ...string) model.Outcome {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var res *executor.ExecutionResult
	err := s.ws.Shared(func() error {
		var err error
		res, err = s.exec.Execute(ctx, executor.ExecutionRequest{
			Program: program,
			Args:    args,
			Dir:     s.ws.Root(),
		})
		return err
	})

	switch {
	case err != nil:
		return model.ProcessFailure{Code: model.CodeSpawnFailure, Stderr: err.Error()}
	case res.TimedOut:
		return model.Timeout{Stdout: res.Stdout, Stderr: res.Stderr}
	case res.ExitCode == 0:
		return model.Ok{Stdout: res.Stdout, Stderr: res.Stderr}
	default:
		return model.ProcessFailure{Code: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
}

func (s *ActionService) begin() time.Time {
	metrics.ActionsInFlight.Inc()
	return time.Now()
}

// finish logs, measures and records a completed action.
// A history write that fails is logged and otherwise ignored.
func (s *ActionService) finish(ctx context.Context, action model.Action, filename, output string, start time.Time, outcome model.Outcome) {
	elapsed := time.Since(start)
	metrics.ActionsInFlight.Dec()
	metrics.ObserveAction(string(action), outcome.Kind(), elapsed)

	result := model.Result(outcome)
	attrs := []any{
		slog.String("action", string(action)),
		slog.Int("code", result.Code),
		slog.String("outcome", outcome.Kind()),
		slog.Duration("duration", elapsed),
	}
	if filename != "" {
		attrs = append(attrs, slog.String("filename", filename))
	}
	s.logger.Info("action finished", attrs...)
	if !result.OK() {
		s.logger.Debug("action stderr", slog.String("action", string(action)), slog.String("stderr", result.Stderr))
	}

	if s.repo == nil {
		return
	}
	record := &model.ActionRecord{
		Action:     action,
		Filename:   filename,
		Output:     output,
		Outcome:    outcome.Kind(),
		Code:       result.Code,
		DurationMs: elapsed.Milliseconds(),
	}
	// The client may already be gone; the record is still worth keeping.
	if err := s.repo.Create(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Warn("failed to record action",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}
