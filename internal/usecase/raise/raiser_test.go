package raise

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
)

type raiseCall struct {
	gameID, nodeID int64
	exclude        []int64
}

type fakeLots struct {
	mu      sync.Mutex
	results map[int64]domain.RaiseResult
	errs    map[int64]error
	calls   []raiseCall
}

func (l *fakeLots) RaiseLots(_ context.Context, gameID, nodeID int64, exclude []int64) (domain.RaiseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, raiseCall{gameID: gameID, nodeID: nodeID, exclude: exclude})
	return l.results[gameID], l.errs[gameID]
}

func (l *fakeLots) LotFields(context.Context, int64, int64) (domain.LotFields, error) {
	return domain.LotFields{}, nil
}

func (l *fakeLots) SaveLot(context.Context, domain.LotFields) error { return nil }

type fakeNotifier struct {
	sent []domain.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

type fakeJournal struct {
	entries []domain.JournalEntry
}

func (j *fakeJournal) RecordEvent(_ context.Context, entry domain.JournalEntry) error {
	j.entries = append(j.entries, entry)
	return nil
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestRaiser(lots *fakeLots, categories ...config.RaiseCategory) (*Raiser, *fakeNotifier, *fakeJournal, *clock) {
	notifier := &fakeNotifier{}
	journal := &fakeJournal{}
	clk := &clock{now: time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)}
	r := New(lots, categories, notifier, journal, zerolog.Nop())
	r.now = clk.Now
	return r, notifier, journal, clk
}

func TestRaiseDueRaisesAndSchedules(t *testing.T) {
	lots := &fakeLots{results: map[int64]domain.RaiseResult{
		9:  {Raised: true, Wait: time.Hour, Subcategories: []domain.Subcategory{{ID: 41, Name: "Аккаунты"}}},
		10: {Wait: 20 * time.Minute, Message: "Подождите 20 минут."},
	}}
	r, notifier, journal, clk := newTestRaiser(lots,
		config.RaiseCategory{GameID: 9, NodeID: 41, Exclude: []int64{43}},
		config.RaiseCategory{GameID: 10, NodeID: 50},
	)

	delay := r.RaiseDue(context.Background())
	assert.Equal(t, 20*time.Minute, delay)
	require.Len(t, lots.calls, 2)
	assert.Equal(t, raiseCall{gameID: 9, nodeID: 41, exclude: []int64{43}}, lots.calls[0])

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.NotifyLotsRaised, notifier.sent[0].Kind)
	assert.Contains(t, notifier.sent[0].Text, "Аккаунты")
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.JournalLotsRaised, journal.entries[0].Event)

	clk.now = clk.now.Add(20 * time.Minute)
	delay = r.RaiseDue(context.Background())
	assert.Len(t, lots.calls, 3)
	assert.Equal(t, int64(10), lots.calls[2].gameID)
	assert.Equal(t, 20*time.Minute, delay)
}

func TestRaiseDueSkipsCategoriesNotYetDue(t *testing.T) {
	lots := &fakeLots{results: map[int64]domain.RaiseResult{9: {Wait: 2 * time.Hour}}}
	r, _, _, clk := newTestRaiser(lots, config.RaiseCategory{GameID: 9, NodeID: 41})

	assert.Equal(t, time.Hour, r.RaiseDue(context.Background()))
	clk.now = clk.now.Add(30 * time.Minute)
	assert.Equal(t, time.Hour, r.RaiseDue(context.Background()))
	assert.Len(t, lots.calls, 1)
}

func TestRaiseDueRetriesErrorsSooner(t *testing.T) {
	lots := &fakeLots{errs: map[int64]error{9: errors.New("таймаут")}}
	r, notifier, _, _ := newTestRaiser(lots, config.RaiseCategory{GameID: 9, NodeID: 41})

	assert.Equal(t, errorDelay, r.RaiseDue(context.Background()))
	assert.Empty(t, notifier.sent)
}

func TestRaiseDueWithoutCategoriesIdles(t *testing.T) {
	r, _, _, _ := newTestRaiser(&fakeLots{})
	assert.Equal(t, idleDelay, r.RaiseDue(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	lots := &fakeLots{results: map[int64]domain.RaiseResult{9: {Raised: true, Wait: time.Hour}}}
	r := New(lots, []config.RaiseCategory{{GameID: 9, NodeID: 41}}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
