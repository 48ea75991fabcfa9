package raise

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/infra/metrics"
	"funpay-agent/internal/usecase/notify"
)

const (
	errorDelay = time.Minute
	idleDelay  = time.Hour
)

// Raiser периодически поднимает лоты категорий. Для каждой категории
// следующая попытка планируется по паузе, которую вернула площадка.
type Raiser struct {
	lots       domain.LotManager
	categories []config.RaiseCategory
	notifier   domain.Notifier
	journal    domain.JournalRepo
	log        zerolog.Logger
	now        func() time.Time

	next []time.Time
}

// New создаёт Raiser. notifier и journal могут быть nil.
func New(lots domain.LotManager, categories []config.RaiseCategory, notifier domain.Notifier, journal domain.JournalRepo, log zerolog.Logger) *Raiser {
	return &Raiser{
		lots:       lots,
		categories: categories,
		notifier:   notifier,
		journal:    journal,
		log:        log,
		now:        time.Now,
		next:       make([]time.Time, len(categories)),
	}
}

// Run поднимает лоты до отмены ctx.
func (r *Raiser) Run(ctx context.Context) error {
	r.log.Info().Int("categories", len(r.categories)).Msg("raise: запуск поднятия лотов")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		timer.Reset(r.RaiseDue(ctx))
	}
}

// RaiseDue поднимает категории, для которых подошло время, и возвращает паузу
// до ближайшей следующей попытки.
func (r *Raiser) RaiseDue(ctx context.Context) time.Duration {
	now := r.now()
	wake := now.Add(idleDelay)
	for i, c := range r.categories {
		if now.Before(r.next[i]) {
			wake = earliest(wake, r.next[i])
			continue
		}
		r.next[i] = now.Add(r.raise(ctx, c))
		wake = earliest(wake, r.next[i])
	}
	return wake.Sub(now)
}

func (r *Raiser) raise(ctx context.Context, c config.RaiseCategory) time.Duration {
	log := r.log.With().Int64("game_id", c.GameID).Int64("node_id", c.NodeID).Logger()
	res, err := r.lots.RaiseLots(ctx, c.GameID, c.NodeID, c.Exclude)
	if err != nil {
		metrics.LotRaises.WithLabelValues("error").Inc()
		if errors.Is(err, domain.ErrUnauthorized) {
			log.Error().Err(err).Msg("raise: сессия не авторизована")
		} else {
			log.Warn().Err(err).Msg("raise: ошибка поднятия лотов")
		}
		return errorDelay
	}
	wait := res.Wait
	if wait <= 0 {
		wait = errorDelay
	}
	if !res.Raised {
		metrics.LotRaises.WithLabelValues("wait").Inc()
		log.Debug().Str("msg", res.Message).Dur("wait", wait).Msg("raise: поднятие пока недоступно")
		return wait
	}

	metrics.LotRaises.WithLabelValues("ok").Inc()
	ids := make([]int64, 0, len(res.Subcategories))
	for _, s := range res.Subcategories {
		ids = append(ids, s.ID)
	}
	log.Info().Ints64("subcategories", ids).Dur("next", wait).Msg("raise: лоты подняты")
	if r.journal != nil {
		err := r.journal.RecordEvent(ctx, domain.JournalEntry{
			Event:      domain.JournalLotsRaised,
			Metadata:   map[string]any{"game_id": c.GameID, "subcategories": ids},
			OccurredAt: r.now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("raise: запись в журнал не удалась")
		}
	}
	if r.notifier != nil {
		n := domain.Notification{Kind: domain.NotifyLotsRaised, Text: notify.FormatLotsRaised(res.Subcategories)}
		if err := r.notifier.Notify(ctx, n); err != nil {
			log.Warn().Err(err).Msg("raise: уведомление не доставлено")
		}
	}
	return wait
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
