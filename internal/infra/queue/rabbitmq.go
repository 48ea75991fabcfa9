package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

// RabbitEventQueue публикует события в очередь RabbitMQ по AMQP.
type RabbitEventQueue struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ domain.EventSink = (*RabbitEventQueue)(nil)

// NewRabbitEventQueue подключается к брокеру и объявляет durable очередь.
func NewRabbitEventQueue(amqpURL, queue string) (*RabbitEventQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	q := &RabbitEventQueue{url: amqpURL, queue: queue}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RabbitEventQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	q.conn, q.ch = conn, ch
	return nil
}

// Publish отправляет событие в очередь. При закрытом соединении переподключается один раз.
func (q *RabbitEventQueue) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Time,
		Type:         ev.Kind.String(),
		Body:         payload,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	start := time.Now()
	err = q.publishLocked(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		if err = q.connect(); err == nil {
			err = q.publishLocked(ctx, msg)
		}
	}
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (q *RabbitEventQueue) publishLocked(ctx context.Context, msg amqp.Publishing) error {
	if q.ch == nil || q.ch.IsClosed() {
		return amqp.ErrClosed
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg)
}

// Close закрывает соединение с брокером.
func (q *RabbitEventQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
