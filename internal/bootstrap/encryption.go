package bootstrap

import (
	"log/slog"

	"github.com/target/companion-client/internal/data/cryptoutil"
)

// CreateSealer creates the sealer that protects persisted credentials.
// A 64-char hex key is used as-is; any other key is hashed to 32 bytes.
// Returns a plain sealer if the key is empty or invalid (with warning log).
//
//nolint:ireturn // Returning interface is intentional for sealer abstraction
func CreateSealer(key string, logger *slog.Logger) cryptoutil.Sealer {
	if key == "" {
		if logger != nil {
			logger.Warn("credential encryption key is empty, persisted credentials are not sealed")
		}
		return cryptoutil.PlainSealer{}
	}

	sealer, err := cryptoutil.SealerFromKey(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create sealer, persisted credentials are not sealed", "error", err)
		}
		return cryptoutil.PlainSealer{}
	}

	return sealer
}
