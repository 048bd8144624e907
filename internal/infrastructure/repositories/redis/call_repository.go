package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const callEventsChannel = "ringlink:calls:events"

type callEvent struct {
	Kind   string             `json:"kind"` // "insert" or "update"
	Record *domain.CallRecord `json:"record"`
}

// RedisCallRepository stores call records in Redis and fans insert/update
// events out over pub/sub so every peer's manager observes transitions,
// whichever node wrote them.
type RedisCallRepository struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRedisCallRepository(client *redis.Client, logger *zap.SugaredLogger) *RedisCallRepository {
	return &RedisCallRepository{
		client: client,
		prefix: "ringlink:call:rec:",
		logger: logger,
	}
}

func (r *RedisCallRepository) callKey(id domain.CallID) string {
	return r.prefix + string(id)
}

func (r *RedisCallRepository) Insert(ctx context.Context, record *domain.CallRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.callKey(record.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store call record: %w", err)
	}
	if !ok {
		return fmt.Errorf("call already exists: %s", record.ID)
	}

	return r.publish(ctx, "insert", record)
}

func (r *RedisCallRepository) Update(ctx context.Context, id domain.CallID, update domain.CallUpdate) (*domain.CallRecord, error) {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() && !update.RecordingOnly() {
		return nil, domain.ErrCallTerminal
	}

	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.StartedAt != nil {
		record.StartedAt = update.StartedAt
	}
	if update.EndedAt != nil {
		record.EndedAt = update.EndedAt
	}
	if update.RecordingURL != nil {
		record.RecordingURL = *update.RecordingURL
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call record: %w", err)
	}
	if err := r.client.Set(ctx, r.callKey(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to update call record: %w", err)
	}

	if err := r.publish(ctx, "update", record); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *RedisCallRepository) GetByID(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	data, err := r.client.Get(ctx, r.callKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	var record domain.CallRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &record, nil
}

func (r *RedisCallRepository) Subscribe(ctx context.Context, observer ports.CallObserver) error {
	pubsub := r.client.Subscribe(ctx, callEventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to call events: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}

				var event callEvent
				if err := json.Unmarshal([]byte(raw.Payload), &event); err != nil {
					r.logger.Warnw("failed to unmarshal call event",
						"error", err,
					)
					continue
				}

				switch event.Kind {
				case "insert":
					if observer.OnInsert != nil {
						observer.OnInsert(event.Record)
					}
				case "update":
					if observer.OnUpdate != nil {
						observer.OnUpdate(event.Record)
					}
				}
			}
		}
	}()
	return nil
}

func (r *RedisCallRepository) publish(ctx context.Context, kind string, record *domain.CallRecord) error {
	data, err := json.Marshal(callEvent{Kind: kind, Record: record})
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}
	if err := r.client.Publish(ctx, callEventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish call event: %w", err)
	}
	return nil
}
