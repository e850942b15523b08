package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	ErrOutboxEmpty   = errors.New("outbox is empty")
	// ErrOutboxCorrupt запись не разобралась; она уже снята с очереди
	ErrOutboxCorrupt = errors.New("outbox entry is corrupt")
)

const outboxKey = "rentcard:outbox:events"

// OutboxRepository очередь событий аналитики, которые не удалось записать сразу
type OutboxRepository interface {
	Push(ctx context.Context, event *models.Event) error
	Pop(ctx context.Context) (*models.Event, error)
	Len(ctx context.Context) (int64, error)
}

type outboxRepository struct {
	redis *RedisDB
}

func NewOutboxRepository(redis *RedisDB) OutboxRepository {
	return &outboxRepository{redis: redis}
}

func (r *outboxRepository) Push(ctx context.Context, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.redis.Client.RPush(ctx, outboxKey, data).Err()
}

func (r *outboxRepository) Pop(ctx context.Context) (*models.Event, error) {
	data, err := r.redis.Client.LPop(ctx, outboxKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOutboxEmpty
		}
		return nil, fmt.Errorf("failed to pop event: %w", err)
	}

	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutboxCorrupt, err)
	}

	return &event, nil
}

func (r *outboxRepository) Len(ctx context.Context) (int64, error) {
	return r.redis.Client.LLen(ctx, outboxKey).Result()
}
