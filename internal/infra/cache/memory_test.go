package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funpay-agent/internal/domain"
)

func TestMemoryCache(t *testing.T) {
	t.Run("Запись и чтение", func(t *testing.T) {
		c := NewMemory()
		require.NoError(t, c.Set("k", []byte("v"), time.Minute))
		got, err := c.Get("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("Значение копируется", func(t *testing.T) {
		c := NewMemory()
		value := []byte("v")
		require.NoError(t, c.Set("k", value, 0))
		value[0] = 'x'
		got, err := c.Get("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("Отсутствующий ключ", func(t *testing.T) {
		_, err := NewMemory().Get("нет")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Просроченный ключ", func(t *testing.T) {
		c := NewMemory()
		require.NoError(t, c.Set("k", []byte("v"), 20*time.Millisecond))
		require.Eventually(t, func() bool {
			_, err := c.Get("k")
			return errors.Is(err, domain.ErrCacheMiss)
		}, time.Second, 10*time.Millisecond)
		c.items.DeleteExpired()
		assert.Zero(t, c.items.ItemCount())
	})

	t.Run("Нулевой ttl не истекает", func(t *testing.T) {
		c := NewMemory()
		require.NoError(t, c.Set("k", []byte("v"), 0))
		_, expires, ok := c.items.GetWithExpiration("k")
		require.True(t, ok)
		assert.True(t, expires.IsZero())
	})

	t.Run("Once выполняется один раз", func(t *testing.T) {
		c := NewMemory()
		calls := 0
		fn := func() error { calls++; return nil }
		require.NoError(t, c.Once("greet", time.Hour, fn))
		require.NoError(t, c.Once("greet", time.Hour, fn))
		assert.Equal(t, 1, calls)
	})

	t.Run("Once повторяется после истечения ключа", func(t *testing.T) {
		c := NewMemory()
		calls := 0
		fn := func() error { calls++; return nil }
		require.NoError(t, c.Once("greet", 20*time.Millisecond, fn))
		require.Eventually(t, func() bool {
			_ = c.Once("greet", 20*time.Millisecond, fn)
			return calls == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Once снимает ключ при ошибке", func(t *testing.T) {
		c := NewMemory()
		boom := errors.New("boom")
		assert.ErrorIs(t, c.Once("k", time.Hour, func() error { return boom }), boom)
		calls := 0
		require.NoError(t, c.Once("k", time.Hour, func() error { calls++; return nil }))
		assert.Equal(t, 1, calls)
	})
}
