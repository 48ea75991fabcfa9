package runner

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"funpay-agent/internal/domain"
)

// Attempt — итог операции с повторами.
type Attempt struct {
	Attempts int
	Err      error
	// Fatal выставляется, если повторять бессмысленно (сессия отозвана).
	Fatal bool
}

// OK сообщает об успехе.
func (a Attempt) OK() bool {
	return a.Err == nil
}

type timerFactory func() backoff.Timer

// clockTimer — backoff.Timer поверх time.Timer.
type clockTimer struct {
	timer *time.Timer
}

func newClockTimer() backoff.Timer {
	return &clockTimer{}
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}

// wait ждёт d или отмены ctx.
func wait(ctx context.Context, timer backoff.Timer, d time.Duration) error {
	defer timer.Stop()
	timer.Start(d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// retry вызывает fn не более attempts раз с постоянной паузой delay между попытками.
// ErrUnauthorized прекращает попытки сразу.
func retry(ctx context.Context, attempts int, delay time.Duration, timer backoff.Timer, fn func(context.Context) error) Attempt {
	var res Attempt
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(max(attempts-1, 0))),
		ctx,
	)
	_ = backoff.RetryNotifyWithTimer(func() error {
		res.Attempts++
		res.Err = fn(ctx)
		if errors.Is(res.Err, domain.ErrUnauthorized) {
			res.Fatal = true
			return backoff.Permanent(res.Err)
		}
		return res.Err
	}, policy, nil, timer)
	return res
}
