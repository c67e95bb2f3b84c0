package config

import (
	"fmt"
	"strings"
	"time"
)

// CacheBackend selects where the last-known credential is mirrored.
type CacheBackend string

const (
	// CacheBackendFile mirrors to a 0600 file.
	CacheBackendFile CacheBackend = "file"
	// CacheBackendRedis mirrors to a Redis key.
	CacheBackendRedis CacheBackend = "redis"
	// CacheBackendMemory keeps the credential in process memory only.
	CacheBackendMemory CacheBackend = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for CacheBackend.
func (b *CacheBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "file", "redis", "memory":
		*b = CacheBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid CacheBackend: %q (valid options: file, redis, memory)", v)
	}
}

// CredentialCacheConfig controls the durable credential mirror.
type CredentialCacheConfig struct {
	Backend CacheBackend `env:"BACKEND" envDefault:"file"`

	// FilePath is used by the file backend. Defaults to the user config dir.
	FilePath string `env:"FILE"`

	// RedisKey and TTL are used by the redis backend.
	RedisKey string        `env:"REDIS_KEY" envDefault:"companion:credential"`
	TTL      time.Duration `env:"TTL"       envDefault:"24h"`

	// EncryptionKey seals the mirrored value with AES-256-GCM. Empty stores it unsealed.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
}

// Sanitize applies guardrails to credential cache values.
func (c *CredentialCacheConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = CacheBackendFile
	}
	c.FilePath = strings.TrimSpace(c.FilePath)
	if c.RedisKey = strings.TrimSpace(c.RedisKey); c.RedisKey == "" {
		c.RedisKey = "companion:credential"
	}
	if c.TTL < 0 {
		c.TTL = 0
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
