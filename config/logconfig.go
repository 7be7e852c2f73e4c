package config

import (
	"runtime"

	coretypes "github.com/projecteru2/core/types"
)

// LogConfig holds the process-wide logging and concurrency knobs that sit
// outside any hypervisor/destination section: log level/rotation (reusing
// eru core's ServerLogConfig) and a worker pool size. cmd/root.go sets up
// logging without it, and the launcher's errgroup runs every worker with no
// size limit, so PoolSize is not applied.
type LogConfig struct {
	RootDir  string                    `json:"root_dir"`
	PoolSize int                       `json:"pool_size"`
	Log      coretypes.ServerLogConfig `json:"log"`
}

// DefaultLogConfig returns a LogConfig with virt-who's conventional
// defaults.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		RootDir:  "/var/lib/virt-who",
		PoolSize: runtime.NumCPU(),
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}
