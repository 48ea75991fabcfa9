package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

const workerQueueSize = 64

// HandlerFunc обрабатывает одно событие ленты.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

type entry struct {
	name string
	fn   HandlerFunc
}

// Dispatcher — реестр обработчиков по типам событий. События одного чата
// или заказа попадают на один и тот же воркер и обрабатываются по порядку.
type Dispatcher struct {
	log     zerolog.Logger
	workers int

	mu       sync.RWMutex
	handlers map[domain.EventKind][]entry
}

// New создаёт диспетчер с заданным числом воркеров.
func New(log zerolog.Logger, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{log: log, workers: workers, handlers: make(map[domain.EventKind][]entry)}
}

// On регистрирует обработчик для типа событий. Обработчики одного типа
// вызываются в порядке регистрации.
func (d *Dispatcher) On(kind domain.EventKind, name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], entry{name: name, fn: fn})
}

// OnAll регистрирует обработчик для всех типов событий.
func (d *Dispatcher) OnAll(name string, fn HandlerFunc) {
	for _, kind := range domain.AllEventKinds() {
		d.On(kind, name, fn)
	}
}

// Handle синхронно прогоняет событие через цепочку обработчиков.
// Ошибка или паника одного обработчика не останавливает остальные.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.Event) {
	d.mu.RLock()
	chain := d.handlers[ev.Kind]
	d.mu.RUnlock()
	for _, h := range chain {
		d.invoke(ctx, h, ev)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, h entry, ev domain.Event) {
	start := time.Now()
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		metrics.ObserveHandler(h.name, start, err)
		if err != nil {
			d.log.Error().
				Err(err).
				Str("handler", h.name).
				Str("kind", ev.Kind.String()).
				Str("tag", ev.Tag).
				Msg("dispatch: обработчик завершился с ошибкой")
		}
	}()
	err = h.fn(ctx, ev)
}

// shard выбирает воркер по чату или заказу события.
func (d *Dispatcher) shard(ev domain.Event) int {
	switch {
	case ev.Chat != nil:
		return int(uint64(ev.Chat.ID) % uint64(d.workers))
	case ev.Message != nil:
		return int(uint64(ev.Message.ChatID) % uint64(d.workers))
	case ev.Order != nil:
		h := fnv.New32a()
		h.Write([]byte(ev.Order.ID))
		return int(h.Sum32() % uint32(d.workers))
	}
	return 0
}

// Run читает события из канала и раздаёт их воркерам, пока канал не закрыт
// или ctx не отменён. Перед возвратом дожидается обработки принятых событий.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event) error {
	queues := make([]chan domain.Event, d.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan domain.Event, workerQueueSize)
		wg.Add(1)
		go func(queue <-chan domain.Event) {
			defer wg.Done()
			for ev := range queue {
				d.Handle(ctx, ev)
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	d.log.Info().Int("workers", d.workers).Msg("dispatch: запущен")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			select {
			case queues[d.shard(ev)] <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
