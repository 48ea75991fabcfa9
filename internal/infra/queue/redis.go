package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

// RedisEventQueue публикует события в Redis list.
type RedisEventQueue struct {
	client *redis.Client
	key    string
	maxLen int64
}

var _ domain.EventSink = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу.
// Список обрезается до maxLen последних событий, если maxLen > 0.
func NewRedisEventQueue(client *redis.Client, key string, maxLen int64) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key, maxLen: maxLen}
}

// Publish кладёт событие в голову списка.
func (q *RedisEventQueue) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	start := time.Now()
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, payload)
	if q.maxLen > 0 {
		pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	}
	_, err = pipe.Exec(ctx)
	metrics.ObserveNetworkRequest("redis", "publish", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

func encodeEvent(ev domain.Event) ([]byte, error) {
	payload, err := json.Marshal(domain.ExportEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}
