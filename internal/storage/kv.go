package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("backend closed")
)

// Backend is a minimal keyed byte store.
//
// Implementations must be safe for concurrent use. Get returns
// ErrKeyNotFound for a missing key; Delete of a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ChangeOp is the kind of write observed by a watcher.
type ChangeOp string

const (
	OpSet    ChangeOp = "set"
	OpDelete ChangeOp = "delete"
)

// Change is a raw notification that key was written or removed,
// possibly by another process.
type Change struct {
	Key string
	Op  ChangeOp
}

// Watcher is implemented by backends that can report writes made through
// other handles on the same underlying storage.
//
// fn may be invoked from a backend goroutine. Notifications can be
// coalesced or duplicated; consumers re-read the key to learn its state.
// The returned stop function is idempotent.
type Watcher interface {
	Watch(fn func(Change)) (stop func(), err error)
}

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeBadger = "badger"
	TypeRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	// Type is one of memory, file, badger, redis.
	// Default: file
	Type string `koanf:"type"`

	// Dir is the directory for the file and badger backends.
	Dir string `koanf:"dir"`

	Badger BadgerConfig `koanf:"badger"`
	Redis  RedisConfig  `koanf:"redis"`
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	// Default: 0.5
	GCThreshold float64 `koanf:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	// Default: 8MB (one small record does not need more)
	CacheSize int64 `koanf:"cache_size"`

	// SyncWrites fsyncs after each write.
	// Default: true
	SyncWrites bool `koanf:"sync_writes"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	// KeyPrefix is prepended to every key.
	// Default: "tokmesh:client:"
	KeyPrefix string `koanf:"key_prefix"`

	// Channel carries change notifications.
	// Default: "tokmesh:client:changes"
	Channel string `koanf:"channel"`

	// DialTimeout bounds connection setup.
	// Default: 5s
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Type:   TypeFile,
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
		Redis:  DefaultRedisConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   8 << 20,
		SyncWrites:  true,
	}
}

// DefaultRedisConfig returns the default redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "127.0.0.1:6379",
		KeyPrefix:   "tokmesh:client:",
		Channel:     "tokmesh:client:changes",
		DialTimeout: 5 * time.Second,
	}
}

// Open creates the backend selected by cfg.Type.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case TypeMemory:
		return NewMemoryBackend(), nil
	case TypeFile, "":
		return NewFileBackend(cfg.Dir, logger)
	case TypeBadger:
		return NewBadgerBackend(cfg.Dir, cfg.Badger, logger)
	case TypeRedis:
		return NewRedisBackend(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Type)
	}
}
