// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New opens the history database, builds the
// ActionService over the workspace and executor it is given, and hangs every
// handler off one chi router.
//
//	main.go:  config → Workspace, Executor → server.New
//	New:      sqlite.DB → ActionService → ActionHandler / HistoryHandler / MCP tools
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/workbench/internal/config"
	"github.com/sakif/workbench/internal/executor"
	"github.com/sakif/workbench/internal/handler"
	"github.com/sakif/workbench/internal/mcptools"
	"github.com/sakif/workbench/internal/metrics"
	"github.com/sakif/workbench/internal/middleware"
	"github.com/sakif/workbench/internal/repository"
	sqliteRepo "github.com/sakif/workbench/internal/repository/sqlite"
	"github.com/sakif/workbench/internal/service"
	"github.com/sakif/workbench/internal/workspace"
)

// Version is reported to MCP clients.
var Version = "dev"

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the history database and closes it on shutdown. The
// executor belongs to the caller.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	ws     *workspace.Workspace
	svc    *service.ActionService
	db     *sqliteRepo.DB // nil when history is disabled
}

// New wires a Server for cfg around ws and exec.
func New(cfg *config.Config, ws *workspace.Workspace, exec executor.Executor, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		ws:     ws,
	}

	// A nil *sqliteRepo.DB inside the interface would not compare equal to
	// nil, so the repository stays a bare nil interface when history is off.
	var repo repository.ActionRepository
	if cfg.History.Enabled {
		if cfg.History.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.History.DBPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.db = db
		repo = db
	}

	s.svc = service.NewActionService(ws, exec, repo, service.Options{
		Compiler: cfg.Toolchain.Compiler,
		Runtime:  cfg.Toolchain.Runtime,
		Timeout:  cfg.Executor.Timeout,
	}, logger)

	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /compile       → compile a source file      (ActionResult)
// POST   /eval          → run a file                 (ActionResult)
// POST   /writeElmFile  → overwrite a file           (ActionResult)
// POST   /readFile      → read a file back           (ActionResult)
// POST   /reset         → empty the workspace        (ActionResult)
// GET    /history       → recent actions             (history enabled)
// GET    /history/{id}  → one action                 (history enabled)
// GET    /health        → liveness and toolchain
// GET    /metrics       → Prometheus                 (metrics enabled)
// *      /mcp           → MCP streamable HTTP        (mcp enabled)
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger for the id to
// show up in the log line, and CORS must answer preflights before routing
// rejects OPTIONS with 405.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	if s.config.Metrics.Enabled {
		s.router.Use(metrics.Middleware)
	}
	s.router.Use(chimiddleware.Recoverer)
	// The editor is served from another origin; every origin is allowed.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	actions := handler.NewActionHandler(s.svc, s.logger)
	s.router.Post("/compile", actions.HandleCompile)
	s.router.Post("/eval", actions.HandleEval)
	s.router.Post("/writeElmFile", actions.HandleWriteFile)
	s.router.Post("/readFile", actions.HandleReadFile)
	s.router.Post("/reset", actions.HandleReset)

	if s.db != nil {
		history := handler.NewHistoryHandler(s.svc, s.logger)
		s.router.Get("/history", history.HandleList)
		s.router.Get("/history/{id}", history.HandleGet)
	}

	s.router.Get("/health", handler.HandleHealth(handler.HealthInfo{
		Executor:  s.config.Executor.Backend,
		Compiler:  s.config.Toolchain.Compiler,
		Runtime:   s.config.Toolchain.Runtime,
		Workspace: s.ws.Root(),
	}))

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	if s.config.MCP.Enabled {
		s.router.Handle(s.config.MCP.Path, mcptools.Handler(mcptools.NewServer(s.svc, Version)))
	}
}

// Close releases what the Server owns.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then waits up to the shutdown timeout for
// in-flight requests and closes the database.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("workspace", s.ws.Root()),
			slog.String("executor", s.config.Executor.Backend),
			slog.Bool("history", s.db != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
