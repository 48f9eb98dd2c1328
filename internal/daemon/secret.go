package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

// secretBytes is the length of a generated webhook secret before hex
// encoding.
const secretBytes = 32

// LoadOrGenerateSecret resolves the webhook shared secret. A configured
// value wins; otherwise a previously persisted secret is reused; otherwise a
// fresh one is generated and persisted with owner-only permissions so the
// CLI can pick it up when registering webhooks.
func LoadOrGenerateSecret(configured, path string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if configured != "" {
		return configured, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret != "" {
			return secret, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", axonerrors.New(axonerrors.ErrCodeConfigInvalid, "failed to read webhook secret", err)
	}

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", axonerrors.New(axonerrors.ErrCodeInternal, "failed to generate webhook secret", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", axonerrors.New(axonerrors.ErrCodeConfigInvalid, "failed to create secret directory", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", axonerrors.New(axonerrors.ErrCodeConfigInvalid, "failed to persist webhook secret", err)
	}

	logger.Info("webhook_secret_generated", slog.String("path", path))
	return secret, nil
}
