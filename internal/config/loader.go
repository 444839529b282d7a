package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, an optional YAML file and
// the environment, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile returns the first of: the explicit path, WORKBENCH_CONFIG,
// ./workbench.yaml if it exists. Empty means run on defaults and env only.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("WORKBENCH_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("workbench.yaml"); err == nil {
		return "workbench.yaml"
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables onto config fields.
// Malformed numbers and durations are errors rather than silently ignored:
// a typo in WORKBENCH_TIMEOUT should not quietly mean "120s".
func applyEnvOverrides(cfg *Config) error {
	// PORT predates the WORKBENCH_ names and is what most PaaS hosts set.
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT value %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WORKBENCH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKBENCH_PORT value %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WORKBENCH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WORKBENCH_WORKSPACE"); v != "" {
		cfg.Workspace.Dir = v
	}
	if v := os.Getenv("WORKBENCH_COMPILER"); v != "" {
		cfg.Toolchain.Compiler = v
	}
	if v := os.Getenv("WORKBENCH_RUNTIME"); v != "" {
		cfg.Toolchain.Runtime = v
	}
	if v := os.Getenv("WORKBENCH_EXECUTOR"); v != "" {
		cfg.Executor.Backend = v
	}
	timeoutSet := false
	if v := os.Getenv("WORKBENCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WORKBENCH_TIMEOUT value %q: %w", v, err)
		}
		cfg.Executor.Timeout = d
		timeoutSet = true
	}
	if v := os.Getenv("WORKBENCH_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WORKBENCH_WRITE_TIMEOUT value %q: %w", v, err)
		}
		cfg.Server.WriteTimeout = d
	} else if timeoutSet {
		cfg.Server.WriteTimeout = fitWriteTimeout(cfg.Server.WriteTimeout, cfg.Executor.Timeout)
	}
	if v := os.Getenv("WORKBENCH_DOCKER_IMAGE"); v != "" {
		cfg.Executor.Docker.Image = v
	}
	if v := os.Getenv("WORKBENCH_DB_PATH"); v != "" {
		cfg.History.DBPath = v
	}
	if v := os.Getenv("WORKBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// fitWriteTimeout returns a write timeout the response can survive an
// action of the given timeout with. write is kept when it already fits; an
// action without a deadline gets no write deadline either.
func fitWriteTimeout(write, action time.Duration) time.Duration {
	switch {
	case action == 0:
		return 0
	case write == 0 || write > action:
		return write
	default:
		return action + writeTimeoutMargin
	}
}
