package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores keys in redis and announces every write on a pub/sub
// channel, so clients on different hosts can share one session.
type RedisBackend struct {
	client  *redis.Client
	prefix  string
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   []*redis.PubSub
}

// NewRedisBackend connects to cfg.Addr and verifies the connection with PING.
func NewRedisBackend(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis backend: addr is required")
	}
	defaults := DefaultRedisConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis backend: ping %s: %w", cfg.Addr, err)
	}

	return NewRedisBackendFromClient(client, cfg.KeyPrefix, cfg.Channel, logger), nil
}

// NewRedisBackendFromClient wraps an existing client. Empty prefix and
// channel fall back to the defaults. The backend owns the client and
// closes it on Close.
func NewRedisBackendFromClient(client *redis.Client, prefix, channel string, logger *slog.Logger) *RedisBackend {
	defaults := DefaultRedisConfig()
	if prefix == "" {
		prefix = defaults.KeyPrefix
	}
	if channel == "" {
		channel = defaults.Channel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBackend{
		client:  client,
		prefix:  prefix,
		channel: channel,
		logger:  logger,
	}
}

func (r *RedisBackend) redisKey(key string) string {
	return r.prefix + key
}

// Get retrieves a value by key.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, r.mapErr(fmt.Errorf("redis backend: get: %w", err))
	}
	return val, nil
}

// Set stores value and publishes the change in one MULTI/EXEC.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.redisKey(key), value, 0)
		pipe.Publish(ctx, r.channel, encodeNotice(OpSet, key))
		return nil
	})
	if err != nil {
		return r.mapErr(fmt.Errorf("redis backend: set: %w", err))
	}
	return nil
}

// Delete removes key and publishes the change if it existed.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.redisKey(key)).Result()
	if err != nil {
		return r.mapErr(fmt.Errorf("redis backend: del: %w", err))
	}
	if n == 0 {
		return nil
	}
	if err := r.client.Publish(ctx, r.channel, encodeNotice(OpDelete, key)).Err(); err != nil {
		r.logger.Warn("redis backend: publish delete failed", "key", key, "error", err)
	}
	return nil
}

// Watch implements Watcher by subscribing to the change channel. It
// returns once the subscription is confirmed by the server.
func (r *RedisBackend) Watch(fn func(Change)) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ctx := context.Background()
	sub := r.client.Subscribe(ctx, r.channel)

	confirmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := sub.Receive(confirmCtx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis backend: subscribe %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				op, key, ok := decodeNotice(msg.Payload)
				if !ok {
					r.logger.Debug("redis backend: ignoring malformed notice", "payload", msg.Payload)
					continue
				}
				select {
				case <-done:
					return
				default:
				}
				fn(Change{Key: key, Op: op})
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			sub.Close()
		})
	}, nil
}

// Close closes subscriptions and the client.
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return r.client.Close()
}

func (r *RedisBackend) mapErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Notices are "<op> <key>".
func encodeNotice(op ChangeOp, key string) string {
	return string(op) + " " + key
}

func decodeNotice(payload string) (ChangeOp, string, bool) {
	op, key, ok := strings.Cut(payload, " ")
	if !ok || key == "" {
		return "", "", false
	}
	switch ChangeOp(op) {
	case OpSet, OpDelete:
		return ChangeOp(op), key, true
	}
	return "", "", false
}
