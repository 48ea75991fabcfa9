package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

const (
	historyBatchSize = 10
	fetchAttempts    = 3
	fetchRetryDelay  = time.Second
)

// Options управляет поведением цикла опроса.
type Options struct {
	Interval          time.Duration
	MessageHistory    bool
	OrderDetails      bool
	IgnoreCycleErrors bool
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		Interval:          6 * time.Second,
		MessageHistory:    true,
		OrderDetails:      true,
		IgnoreCycleErrors: true,
	}
}

// Runner опрашивает ленту площадки и превращает изменения в события.
type Runner struct {
	feed  domain.Feed
	state *State
	opts  Options
	log   zerolog.Logger

	now      func() time.Time
	newTimer timerFactory

	lastCycle atomic.Int64
}

// New создаёт Runner с чистым состоянием.
func New(feed domain.Feed, opts Options, log zerolog.Logger) *Runner {
	return &Runner{
		feed:  feed,
		state: NewState(),
		opts:  opts,
		log:   log,
		now:      time.Now,
		newTimer: newClockTimer,
	}
}

// State возвращает состояние опроса.
func (r *Runner) State() *State {
	return r.state
}

// MarkSelfSent запоминает сообщение, отправленное агентом.
func (r *Runner) MarkSelfSent(chatID, messageID int64) {
	r.state.MarkSelfSent(chatID, messageID)
}

// UpdateLastMessage обновляет превью чата после отправки сообщения агентом.
func (r *Runner) UpdateLastMessage(chatID int64, text *string) {
	r.state.UpdateLastMessage(chatID, text)
}

// LastCycle возвращает время последнего успешного цикла.
func (r *Runner) LastCycle() time.Time {
	ns := r.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// PollOnce запрашивает обе ленты одним запросом с сохранёнными тегами.
func (r *Runner) PollOnce(ctx context.Context) (domain.Snapshot, error) {
	chatTag, orderTag := r.state.Tags()
	start := time.Now()
	snap, err := r.feed.Poll(ctx, chatTag, orderTag)
	metrics.ObserveNetworkRequest("runner", "poll", "feed", start, err)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("опрос ленты: %w", err)
	}
	return snap, nil
}

// ProcessSnapshot сравнивает снимок с состоянием и возвращает события:
// сначала события чатов, затем события заказов.
// После первого вызова Runner переходит из начального режима в рабочий.
func (r *Runner) ProcessSnapshot(ctx context.Context, snap domain.Snapshot) []domain.Event {
	defer r.state.finishBootstrap()

	var events []domain.Event
	if snap.Chats != nil {
		events = append(events, r.processChats(ctx, *snap.Chats)...)
	}
	if snap.Orders != nil {
		events = append(events, r.processOrders(ctx, *snap.Orders)...)
	}
	return events
}

// Cycle выполняет один цикл опроса.
func (r *Runner) Cycle(ctx context.Context) ([]domain.Event, error) {
	snap, err := r.PollOnce(ctx)
	if err != nil {
		return nil, err
	}
	events := r.ProcessSnapshot(ctx, snap)
	r.lastCycle.Store(r.now().UnixNano())
	return events, nil
}

// Run крутит циклы опроса до отмены ctx и отдаёт события в out.
// Отмена проверяется между циклами: начатый цикл доводится до конца.
// Ошибки цикла логируются, если IgnoreCycleErrors, иначе возвращаются.
//
// Передача в out блокирующая: пока потребитель не забрал все события цикла,
// следующий цикл не начинается, и события не теряются. Медленный потребитель
// замедляет опрос, а не переполняет очередь.
func (r *Runner) Run(ctx context.Context, out chan<- domain.Event) error {
	r.log.Info().
		Dur("interval", r.opts.Interval).
		Bool("history", r.opts.MessageHistory).
		Bool("orders", r.opts.OrderDetails).
		Msg("runner: запуск опроса")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := r.Cycle(context.WithoutCancel(ctx))
		if err != nil {
			metrics.RunnerCycles.WithLabelValues("error").Inc()
			if !r.opts.IgnoreCycleErrors {
				return err
			}
			r.log.Error().Err(err).Msg("runner: ошибка цикла опроса")
		} else {
			metrics.RunnerCycles.WithLabelValues("ok").Inc()
			if len(events) > 0 {
				r.log.Debug().Int("events", len(events)).Msg("runner: получены события")
			}
			for _, ev := range events {
				metrics.RunnerEvents.WithLabelValues(ev.Kind.String()).Inc()
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if err := wait(ctx, r.newTimer(), r.opts.Interval); err != nil {
			return err
		}
	}
}
