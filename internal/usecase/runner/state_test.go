package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funpay-agent/internal/domain"
)

func TestWatermarkNeverMovesBackward(t *testing.T) {
	s := NewState()
	s.advanceWatermark(1, 10)
	s.advanceWatermark(1, 5)

	wm, ok := s.Watermark(1)
	require.True(t, ok)
	assert.Equal(t, int64(10), wm)
}

func TestAdvancePrunesSelfSentBelowWatermark(t *testing.T) {
	s := NewState()
	for _, id := range []int64{3, 7, 12} {
		s.MarkSelfSent(1, id)
	}
	s.advanceWatermark(1, 7)

	assert.False(t, s.IsSelfSent(1, 3))
	assert.False(t, s.IsSelfSent(1, 7))
	assert.True(t, s.IsSelfSent(1, 12))
	assert.Equal(t, 1, s.SelfSentCount(1))
}

func TestMarkSelfSentIsSafeForConcurrentUse(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.MarkSelfSent(2, id)
			_ = s.IsSelfSent(2, id)
		}(int64(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 50, s.SelfSentCount(2))
}

func TestTruncatedPreviewOnUpdate(t *testing.T) {
	s := NewState()
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'ж'
	}
	text := string(long)
	s.UpdateLastMessage(1, &text)

	preview, _ := s.Preview(1)
	assert.Len(t, []rune(preview), domain.PreviewLimit)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	rec := &timerRecorder{}
	calls := 0
	res := retry(context.Background(), 3, time.Second, rec.newTimer(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("временная ошибка")
		}
		return nil
	})

	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits())
}

func TestRetryExhaustsAttempts(t *testing.T) {
	rec := &timerRecorder{}
	res := retry(context.Background(), 3, time.Second, rec.newTimer(), func(context.Context) error {
		return &domain.RequestError{Op: "тест", StatusCode: 500}
	})

	assert.False(t, res.OK())
	assert.False(t, res.Fatal)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.waits())
	assert.ErrorIs(t, res.Err, domain.ErrRequestFailed)
}

func TestRetrySingleAttemptDoesNotWait(t *testing.T) {
	rec := &timerRecorder{}
	res := retry(context.Background(), 1, time.Second, rec.newTimer(), func(context.Context) error {
		return errors.New("ошибка")
	})

	assert.Equal(t, 1, res.Attempts)
	assert.Error(t, res.Err)
	assert.Empty(t, rec.waits())
}

func TestRetryUnauthorizedIsPermanent(t *testing.T) {
	rec := &timerRecorder{}
	res := retry(context.Background(), 3, time.Second, rec.newTimer(), func(context.Context) error {
		return &domain.RequestError{Op: "тест", StatusCode: 403}
	})

	assert.True(t, res.Fatal)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, domain.ErrUnauthorized)
	assert.Empty(t, rec.waits())
}

func TestRetryStopsWhenContextIsCancelled(t *testing.T) {
	rec := &timerRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := retry(ctx, 3, time.Second, rec.newTimer(), func(context.Context) error {
		cancel()
		return errors.New("ошибка")
	})

	assert.Equal(t, 1, res.Attempts)
	assert.EqualError(t, res.Err, "ошибка")
	assert.Empty(t, rec.waits())
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := wait(ctx, newClockTimer(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
