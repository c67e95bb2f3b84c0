package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/target/companion-client/config"
	"github.com/target/companion-client/internal/adapters/filemirror"
	redisadapter "github.com/target/companion-client/internal/adapters/redis"
	"github.com/target/companion-client/internal/core"
	"github.com/target/companion-client/internal/data/cryptoutil"
	"github.com/target/companion-client/internal/ports"
)

// CredentialStoreConfig contains configuration for the credential store and its mirror.
type CredentialStoreConfig struct {
	Cache config.CredentialCacheConfig
	// RedisClient is required for the redis backend.
	RedisClient redis.UniversalClient
	Sealer      cryptoutil.Sealer
	Logger      *slog.Logger
}

// BuildCredentialStore creates the credential store for the configured backend and loads the
// mirrored credential, if any.
func BuildCredentialStore(ctx context.Context, cfg CredentialStoreConfig) (*core.CredentialStore, error) {
	mirror, err := buildCredentialMirror(cfg)
	if err != nil {
		return nil, err
	}

	store := core.NewCredentialStore(core.CredentialStoreOptions{
		Mirror: mirror,
		Sealer: cfg.Sealer,
		Logger: cfg.Logger,
	})
	if store.Rehydrate(ctx) && cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "loaded mirrored credential", "backend", cfg.Cache.Backend)
	}
	return store, nil
}

//nolint:ireturn // the backend is chosen at runtime.
func buildCredentialMirror(cfg CredentialStoreConfig) (ports.CredentialMirror, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return nil, nil
	case config.CacheBackendRedis:
		if cfg.RedisClient == nil {
			return nil, errors.New("redis credential cache requires a redis client")
		}
		return redisadapter.NewCredentialMirror(cfg.RedisClient, cfg.Cache.RedisKey, cfg.Cache.TTL), nil
	case config.CacheBackendFile, "":
		path := cfg.Cache.FilePath
		if path == "" {
			p, err := DefaultCredentialPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		m, err := filemirror.New(path)
		if err != nil {
			return nil, fmt.Errorf("credential file: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported credential cache backend %q", cfg.Cache.Backend)
	}
}

// DefaultCredentialPath returns the per-user credential file location.
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "companion", "credential"), nil
}
