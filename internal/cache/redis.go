package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/jonoshongjog/services/relief/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by Get when the key does not exist
var ErrMiss = errors.New("key not found in cache")

// ErrDisabled is returned by every call on a disabled cache
var ErrDisabled = errors.New("cache is disabled")

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
		ttl:     24 * time.Hour,
	}, nil
}

// Enabled reports whether the cache talks to Redis
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "failed to delete keys from Redis")
}

// GetVolunteerProfileID looks up the cached profile id of a volunteer user
func (c *RedisCache) GetVolunteerProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool) {
	var id uuid.UUID
	if err := c.Get(ctx, VolunteerProfileKey(userID), &id); err != nil {
		if err != ErrMiss && err != ErrDisabled {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Volunteer cache lookup failed")
		}
		return uuid.Nil, false
	}
	return id, true
}

// SetVolunteerProfileID caches the profile id of a volunteer user
func (c *RedisCache) SetVolunteerProfileID(ctx context.Context, userID, profileID uuid.UUID) {
	if !c.Enabled() {
		return
	}
	if err := c.Set(ctx, VolunteerProfileKey(userID), profileID, c.ttl); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Volunteer cache write failed")
	}
}

// VolunteerProfileKey generates a cache key for the user id to profile id mapping
func VolunteerProfileKey(userID uuid.UUID) string {
	return fmt.Sprintf("volunteer:user:%s", userID.String())
}

// ChatSessionKey generates a cache key for a chat session
func ChatSessionKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}
