// Package handler contains the HTTP handlers of the workbench.
//
// Handlers only translate between HTTP and the ActionService: decode the
// body, call one service method, encode the result. They hold no rules of
// their own beyond "this JSON field must be present".
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/workbench/internal/apperror"
	"github.com/sakif/workbench/internal/model"
	"github.com/sakif/workbench/internal/service"
)

// Request bodies use pointers so an absent field is distinguishable from "".
type (
	compileRequest struct {
		Filename *string `json:"filename"`
		Output   *string `json:"output"`
	}
	fileRequest struct {
		Filename *string `json:"filename"`
	}
	writeFileRequest struct {
		Filename *string `json:"filename"`
		Content  *string `json:"content"`
	}
)

// ActionHandler serves the action routes.
type ActionHandler struct {
	svc    *service.ActionService
	logger *slog.Logger
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(svc *service.ActionService, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleCompile compiles a source file in the workspace.
//
// HTTP: POST /compile
// REQUEST BODY: {"filename": "Main.elm", "output": "main.js"}
func (h *ActionHandler) HandleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Filename == nil {
		writeError(w, apperror.Required("filename"))
		return
	}
	if req.Output == nil {
		writeError(w, apperror.Required("output"))
		return
	}

	h.respond(w, r, func(ctx context.Context) (model.Outcome, error) {
		return h.svc.Compile(ctx, *req.Filename, *req.Output)
	})
}

// HandleEval runs a compiled file with the runtime.
//
// HTTP: POST /eval
// REQUEST BODY: {"filename": "main.js"}
func (h *ActionHandler) HandleEval(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Filename == nil {
		writeError(w, apperror.Required("filename"))
		return
	}

	h.respond(w, r, func(ctx context.Context) (model.Outcome, error) {
		return h.svc.Evaluate(ctx, *req.Filename)
	})
}

// HandleWriteFile overwrites a file in the workspace.
//
// HTTP: POST /writeElmFile
// REQUEST BODY: {"filename": "Main.elm", "content": "module Main exposing (..)"}
func (h *ActionHandler) HandleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Filename == nil {
		writeError(w, apperror.Required("filename"))
		return
	}

	h.respond(w, r, func(ctx context.Context) (model.Outcome, error) {
		return h.svc.WriteFile(ctx, *req.Filename, req.Content)
	})
}

// HandleReadFile returns a workspace file as stdout.
//
// HTTP: POST /readFile
// REQUEST BODY: {"filename": "main.js"}
func (h *ActionHandler) HandleReadFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Filename == nil {
		writeError(w, apperror.Required("filename"))
		return
	}

	h.respond(w, r, func(ctx context.Context) (model.Outcome, error) {
		return h.svc.ReadFile(ctx, *req.Filename)
	})
}

// HandleReset empties the workspace.
//
// HTTP: POST /reset
// REQUEST BODY: {} or nothing. Any fields are ignored.
func (h *ActionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req struct{}
	if !h.decode(w, r, &req) {
		return
	}

	h.respond(w, r, h.svc.Reset)
}

func (h *ActionHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		h.logger.Warn("invalid request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeInvalidRequest(w, "request body must be a JSON object")
		return false
	}
	return true
}

// respond runs the action and writes its ActionResult with status 200.
func (h *ActionHandler) respond(w http.ResponseWriter, r *http.Request, action func(context.Context) (model.Outcome, error)) {
	outcome, err := action(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Result(outcome))
}
