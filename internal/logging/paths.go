package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.axon/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".axon", "logs")
	}
	return filepath.Join(home, ".axon", "logs")
}

// DefaultLogPath returns the default daemon log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "daemon.log")
}
