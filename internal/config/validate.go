package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if strings.TrimSpace(c.Workspace.Dir) == "" {
		errs = append(errs, errors.New("workspace.dir is required"))
	}
	if strings.TrimSpace(c.Toolchain.Compiler) == "" {
		errs = append(errs, errors.New("toolchain.compiler is required"))
	}
	if strings.TrimSpace(c.Toolchain.Runtime) == "" {
		errs = append(errs, errors.New("toolchain.runtime is required"))
	}

	switch c.Executor.Backend {
	case BackendLocal:
	case BackendDocker:
		if c.Executor.Docker.Image == "" {
			errs = append(errs, errors.New("executor.docker.image is required for the docker backend"))
		}
		if c.Executor.Docker.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("executor.docker.pool_size must be at least 1, got %d", c.Executor.Docker.PoolSize))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.backend must be %q or %q, got %q", BackendLocal, BackendDocker, c.Executor.Backend))
	}

	if c.Executor.Timeout < 0 {
		errs = append(errs, errors.New("executor.timeout must not be negative"))
	}
	// The response must be able to outlive the action it reports on.
	if c.Server.WriteTimeout > 0 && (c.Executor.Timeout == 0 || c.Server.WriteTimeout <= c.Executor.Timeout) {
		errs = append(errs, fmt.Errorf("server.write_timeout (%s) must exceed executor.timeout (%s)", c.Server.WriteTimeout, c.Executor.Timeout))
	}

	if c.History.Enabled && strings.TrimSpace(c.History.DBPath) == "" {
		errs = append(errs, errors.New("history.db_path is required when history is enabled"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with /, got %q", c.MCP.Path))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
