package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

// Postgres сохраняет журнал событий агента.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.JournalRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordEvent сохраняет запись журнала. Записи без имени события пропускаются.
func (p *Postgres) RecordEvent(ctx context.Context, entry domain.JournalEntry) error {
	if entry.Event == "" {
		return nil
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var chatID sql.NullInt64
	if entry.ChatID != nil {
		chatID = sql.NullInt64{Int64: *entry.ChatID, Valid: true}
	}
	var orderID sql.NullString
	if entry.OrderID != nil {
		orderID = sql.NullString{String: *entry.OrderID, Valid: true}
	}
	var payload []byte
	if entry.Metadata != nil {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO agent_journal (event, chat_id, order_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, entry.Event, chatID, orderID, payload, entry.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "journal_insert", "agent_journal", start, err)
	return err
}

// LogJournal пишет журнал в лог, когда база не настроена.
type LogJournal struct {
	log zerolog.Logger
}

var _ domain.JournalRepo = LogJournal{}

// NewLogJournal создаёт журнал поверх логгера.
func NewLogJournal(log zerolog.Logger) LogJournal {
	return LogJournal{log: log}
}

// RecordEvent пишет запись на уровне debug.
func (j LogJournal) RecordEvent(_ context.Context, entry domain.JournalEntry) error {
	ev := j.log.Debug().Str("event", entry.Event)
	if entry.ChatID != nil {
		ev = ev.Int64("chat_id", *entry.ChatID)
	}
	if entry.OrderID != nil {
		ev = ev.Str("order_id", *entry.OrderID)
	}
	ev.Interface("metadata", entry.Metadata).Msg("journal")
	return nil
}
