package docker

// Config holds the configuration for Docker execution.
type Config struct {
	// Image must contain the compiler and runtime executables.
	Image string
	// SkipPull uses a locally built image without contacting a registry.
	SkipPull bool
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
	// WorkspaceDir is the absolute host path bind-mounted into every container.
	WorkspaceDir string
	// MountPath is where the workspace appears inside the container.
	MountPath string
	// User runs the exec'd program; empty means the image default. It needs
	// write access to the workspace for compile output.
	User string
}

// DefaultConfig provides defaults for a node-based toolchain image.
func DefaultConfig() Config {
	return Config{
		Image: "node:20-alpine",
		// 256 MB memory limit; compilers are hungrier than scripts
		MemoryLimit: 256 * 1024 * 1024,
		CPULimit:    1,
		PoolSize:    2,
		MountPath:   "/work",
	}
}
