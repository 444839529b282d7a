// Package config provides the workbench server configuration.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WORKBENCH_CONFIG, ./workbench.yaml)
//  3. Environment variable overrides (WORKBENCH_ prefix, plus PORT)
//  4. Validation
package config

import "time"

// Executor backends.
const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// writeTimeoutMargin is how much longer than an action the server waits
// before giving up on writing its response.
const writeTimeoutMargin = 30 * time.Second

// Config holds all configuration for the workbench server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Executor  ExecutorConfig  `yaml:"executor"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MCP       MCPConfig       `yaml:"mcp"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: "0.0.0.0"
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 150s, 0 = none
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// WorkspaceConfig locates the scratch directory.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"` // default: "work"
}

// ToolchainConfig names the external programs.
type ToolchainConfig struct {
	Compiler string `yaml:"compiler"` // default: "elm-make"
	Runtime  string `yaml:"runtime"`  // default: "node"
}

// ExecutorConfig selects and tunes the backend that runs the toolchain.
type ExecutorConfig struct {
	Backend string        `yaml:"backend"` // "local" or "docker", default: "local"
	Timeout time.Duration `yaml:"timeout"` // per action, default: 120s, 0 = none
	Docker  DockerConfig  `yaml:"docker"`
}

// DockerConfig holds docker backend settings.
type DockerConfig struct {
	Image       string  `yaml:"image"`        // default: "node:20-alpine"
	SkipPull    bool    `yaml:"skip_pull"`    // default: false
	MemoryLimit int64   `yaml:"memory_limit"` // bytes, default: 256MiB
	CPULimit    float64 `yaml:"cpu_limit"`    // default: 1
	PoolSize    int     `yaml:"pool_size"`    // default: 2
	User        string  `yaml:"user"`         // default: image default
}

// HistoryConfig controls the SQLite action history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	DBPath  string `yaml:"db_path"` // default: "data/workbench.db"
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/mcp"
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error; default: "debug"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120*time.Second + writeTimeoutMargin,
			ShutdownTimeout: 30 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Dir: "work",
		},
		Toolchain: ToolchainConfig{
			Compiler: "elm-make",
			Runtime:  "node",
		},
		Executor: ExecutorConfig{
			Backend: BackendLocal,
			Timeout: 120 * time.Second,
			Docker: DockerConfig{
				Image:       "node:20-alpine",
				MemoryLimit: 256 * 1024 * 1024,
				CPULimit:    1,
				PoolSize:    2,
			},
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "data/workbench.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MCP: MCPConfig{
			Enabled: true,
			Path:    "/mcp",
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}
