package userstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
)

const userStateKey = "userstate"

// RedisBackend stores each user as one field of a hash
type RedisBackend struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisBackend connects to the Redis URL and verifies the connection
func NewRedisBackend(ctx context.Context, url, prefix string, logger *zap.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisBackendWithClient(client, prefix, logger), nil
}

// NewRedisBackendWithClient wraps an existing client
func NewRedisBackendWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisBackend {
	return &RedisBackend{
		client: client,
		key:    prefix + userStateKey,
		logger: logger,
	}
}

// Load reads every field of the hash. Fields that fail to decode are skipped.
func (b *RedisBackend) Load(ctx context.Context) (map[string]entities.UserState, error) {
	fields, err := b.client.HGetAll(ctx, b.key).Result()
	if err == redis.Nil {
		return map[string]entities.UserState{}, nil
	}
	if err != nil {
		return map[string]entities.UserState{}, fmt.Errorf("failed to load user state: %w", err)
	}

	states := make(map[string]entities.UserState, len(fields))
	for userID, raw := range fields {
		var state entities.UserState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			b.logger.Warn("Skipping malformed user state", zap.String("userID", userID), zap.Error(err))
			continue
		}
		states[userID] = state
	}
	return states, nil
}

// Save writes one user's state
func (b *RedisBackend) Save(ctx context.Context, userID string, state entities.UserState) error {
	val, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode user state: %w", err)
	}
	if err := b.client.HSet(ctx, b.key, userID, val).Err(); err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}
	return nil
}

// Close closes the client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
