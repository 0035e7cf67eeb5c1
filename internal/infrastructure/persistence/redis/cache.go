// Package redis implements the Redis caches used by the Stellar Map:
// grouped hierarchy trees per core and tier, and per-learner completion sets.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Namespace prefixes every key. Empty uses DefaultNamespace.
	Namespace string
}

// DefaultNamespace is the key prefix when Config.Namespace is empty.
const DefaultNamespace = "stellar"

// DefaultConfig returns a local single-node configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS AND TTLS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned by Get when the key is absent or expired.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned by NewCache when the first ping fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON encoding failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty   = errors.New("cache: key cannot be empty")
	ErrCacheNilValue   = errors.New("cache: value cannot be nil")
)

// Fallback TTLs for caches created with a non-positive ttl.
const (
	TTLHierarchy = 5 * time.Minute
	TTLCompleted = 30 * time.Minute
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a namespaced JSON cache over one Redis client. Transport
// failures are returned as shared.ErrExternalService.
type Cache struct {
	client    *redis.Client
	namespace string
}

// NewCache connects to Redis and verifies the connection.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}

	return newCache(client, cfg.Namespace), nil
}

// NewCacheFromClient wraps an existing client under the default namespace.
func NewCacheFromClient(client *redis.Client) *Cache {
	return newCache(client, "")
}

func newCache(client *redis.Client, namespace string) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Cache{client: client, namespace: strings.TrimSuffix(namespace, ":")}
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return unavailable("Ping", c.client.Ping(ctx).Err())
}

// Key joins parts under the cache namespace.
func (c *Cache) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Set stores value as JSON. A zero ttl keeps the key until deleted.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	switch {
	case key == "":
		return ErrCacheKeyEmpty
	case value == nil:
		return ErrCacheNilValue
	case ttl < 0:
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return unavailable("Set", c.client.Set(ctx, key, data, ttl).Err())
}

// Get decodes the JSON stored at key into dest. A missing key returns
// ErrCacheMiss. A value that no longer decodes is deleted and reported as a
// miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return unavailable("Get", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return ErrCacheMiss
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return unavailable("Delete", c.client.Del(ctx, keys...).Err())
}

// DeleteMatching removes every key matching a glob pattern, scanning in
// batches so a large keyspace never blocks the server.
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, ErrCacheKeyEmpty
	}

	const batch = 100
	deleted := 0
	keys := make([]string, 0, batch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, keys...).Result()
		deleted += int(n)
		keys = keys[:0]
		return err
	}

	iter := c.client.Scan(ctx, 0, pattern, batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := flush(); err != nil {
				return deleted, unavailable("DeleteMatching", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, unavailable("DeleteMatching", err)
	}
	if err := flush(); err != nil {
		return deleted, unavailable("DeleteMatching", err)
	}
	return deleted, nil
}

// SMembers returns all members of a set.
func (c *Cache) SMembers(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	members, err := c.client.SMembers(ctx, key).Result()
	return members, unavailable("SMembers", err)
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return shared.WrapError("cache", op, shared.ErrExternalService, "redis", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// HierarchyKey is the key of the grouped tree of one core and tier.
func (c *Cache) HierarchyKey(core, tier string) string {
	return c.Key("hierarchy", core, tier)
}

// HierarchyPattern matches every tier of core, or every core when core is empty.
func (c *Cache) HierarchyPattern(core string) string {
	if core == "" {
		return c.Key("hierarchy", "*")
	}
	return c.Key("hierarchy", core, "*")
}

// CompletedKey is the key of a learner's completion set.
func (c *Cache) CompletedKey(learnerID string) string {
	return c.Key("completed", learnerID)
}
