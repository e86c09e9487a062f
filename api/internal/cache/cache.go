// Package cache stores model output keyed by image content, so a
// re-sent photo does not cost another model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ImageHash is the hex SHA-256 of the raw image bytes.
func ImageHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScanKey builds the key of a scan result for one image and mode.
func ScanKey(imageHash, mode string) string {
	return "scan:" + mode + ":" + imageHash
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects and pings. The default key prefix is "gradescan:".
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "gradescan:"
	}
	return &RedisClient{client: client, prefix: prefix}, nil
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error { return c.client.Close() }

// MemoryClient is an in-process cache with per-entry expiry. When full, the
// entry closest to expiry is evicted.
type MemoryClient struct {
	mu      sync.Mutex
	data    map[string]entry
	maxSize int
	now     func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryClient{data: make(map[string]entry), maxSize: maxSize, now: time.Now}
}

func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value; ttl <= 0 means no expiry.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evict()
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = e
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) Close() error { return nil }

func (c *MemoryClient) evict() {
	var victim string
	var soonest time.Time
	for k, e := range c.data {
		exp := e.expiresAt
		if exp.IsZero() {
			exp = time.Unix(1<<62, 0)
		}
		if victim == "" || exp.Before(soonest) {
			victim, soonest = k, exp
		}
	}
	delete(c.data, victim)
}
