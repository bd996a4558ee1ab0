package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// RedisSummarizeQueue реализует очередь задач на базе Redis lists.
type RedisSummarizeQueue struct {
	client *redis.Client
	key    string
}

var _ domain.SummarizeQueue = (*RedisSummarizeQueue)(nil)

// NewRedisSummarizeQueue создаёт очередь по указанному ключу.
func NewRedisSummarizeQueue(client *redis.Client, key string) *RedisSummarizeQueue {
	return &RedisSummarizeQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisSummarizeQueue) Enqueue(ctx context.Context, job domain.SummarizeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Отказ через ack(false) возвращает задачу в очередь со следующим номером попытки.
func (q *RedisSummarizeQueue) Receive(ctx context.Context) (domain.SummarizeJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.SummarizeJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.SummarizeJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.SummarizeJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.SummarizeJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.SummarizeJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.SummarizeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			retry := job
			retry.Attempt++
			return q.Enqueue(context.WithoutCancel(ctx), retry)
		}
		return job, ack, nil
	}
}
