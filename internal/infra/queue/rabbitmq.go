package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// RabbitSummarizeQueue реализует очередь задач через AMQP.
type RabbitSummarizeQueue struct {
	conn  *amqp.Connection
	queue string

	pubMu sync.Mutex
	pub   *amqp.Channel

	consumeOnce sync.Once
	consumeErr  error
	deliveries  <-chan amqp.Delivery
	sub         *amqp.Channel
}

var _ domain.SummarizeQueue = (*RabbitSummarizeQueue)(nil)

// NewRabbitSummarizeQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitSummarizeQueue(amqpURL, queue string) (*RabbitSummarizeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitSummarizeQueue{conn: conn, queue: queue, pub: pub}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitSummarizeQueue) Enqueue(ctx context.Context, job domain.SummarizeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	start := time.Now()
	err = q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (q *RabbitSummarizeQueue) startConsumer() error {
	q.consumeOnce.Do(func() {
		sub, err := q.conn.Channel()
		if err != nil {
			q.consumeErr = fmt.Errorf("open consumer channel: %w", err)
			return
		}
		if err := sub.Qos(1, 0, false); err != nil {
			q.consumeErr = fmt.Errorf("set qos: %w", err)
			return
		}
		deliveries, err := sub.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			q.consumeErr = fmt.Errorf("consume: %w", err)
			return
		}
		q.sub = sub
		q.deliveries = deliveries
	})
	return q.consumeErr
}

// Receive ждёт следующую задачу. Отказ через ack(false) публикует задачу заново со следующим номером попытки.
func (q *RabbitSummarizeQueue) Receive(ctx context.Context) (domain.SummarizeJob, domain.AckFunc, error) {
	if err := q.startConsumer(); err != nil {
		return domain.SummarizeJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.SummarizeJob{}, nil, ctx.Err()
		case d, ok := <-q.deliveries:
			if !ok {
				return domain.SummarizeJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.SummarizeJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				return domain.SummarizeJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				retry := job
				retry.Attempt++
				if err := q.Enqueue(context.WithoutCancel(ctx), retry); err != nil {
					return d.Nack(false, true)
				}
				return d.Ack(false)
			}
			return job, ack, nil
		}
	}
}

// Close закрывает соединение с брокером.
func (q *RabbitSummarizeQueue) Close() error {
	return q.conn.Close()
}
