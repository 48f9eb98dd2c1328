package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateSecret_ConfiguredWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhook-secret")

	secret, err := LoadOrGenerateSecret("configured-value", path, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "configured-value", secret)
	assert.NoFileExists(t, path, "configured secrets are not persisted")
}

func TestLoadOrGenerateSecret_GeneratesAndReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "webhook-secret")

	secret, err := LoadOrGenerateSecret("", path, slog.Default())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), secret, "32 random bytes, hex encoded")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	again, err := LoadOrGenerateSecret("", path, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, secret, again, "persisted secret is reused across restarts")
}
