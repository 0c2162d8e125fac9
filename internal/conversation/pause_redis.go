package conversation

import (
	"context"

	"github.com/mohomer/layla-concierge/pkg/logging"
	"github.com/redis/go-redis/v9"
)

const (
	pauseAllKey = "pause:all"
	pauseSetKey = "pause:conversations"
)

// RedisPauseRegistry shares pause state across processes through Redis.
// Use it when the dispatcher runs as more than one replica; a single
// process can keep the in-memory registry.
type RedisPauseRegistry struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisPauseRegistry wraps a Redis client as a PauseRegistry.
func NewRedisPauseRegistry(client *redis.Client, logger *logging.Logger) *RedisPauseRegistry {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisPauseRegistry{client: client, logger: logger}
}

// IsBlocked fails open: if Redis is unreachable the bot keeps answering
// rather than going silent.
func (r *RedisPauseRegistry) IsBlocked(ctx context.Context, conversationID string) bool {
	all, err := r.client.Exists(ctx, pauseAllKey).Result()
	if err != nil {
		r.logger.Error("pause registry read failed", "key", pauseAllKey, "error", err)
		return false
	}
	if all > 0 {
		return true
	}
	paused, err := r.client.SIsMember(ctx, pauseSetKey, conversationID).Result()
	if err != nil {
		r.logger.Error("pause registry read failed", "key", pauseSetKey, "error", err)
		return false
	}
	return paused
}

func (r *RedisPauseRegistry) PauseAll(ctx context.Context) error {
	return r.client.Set(ctx, pauseAllKey, "1", 0).Err()
}

func (r *RedisPauseRegistry) ResumeAll(ctx context.Context) error {
	if err := r.client.Del(ctx, pauseAllKey).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, pauseSetKey).Err()
}

func (r *RedisPauseRegistry) Pause(ctx context.Context, conversationID string) error {
	return r.client.SAdd(ctx, pauseSetKey, conversationID).Err()
}

func (r *RedisPauseRegistry) Resume(ctx context.Context, conversationID string) error {
	return r.client.SRem(ctx, pauseSetKey, conversationID).Err()
}
