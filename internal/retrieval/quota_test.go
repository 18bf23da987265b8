package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyhq/colony/pkg/storage"
)

func TestQuotaManager_DailyLimit(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, true)
	q.Configure("alpha", 3, 0)

	for i := 0; i < 3; i++ {
		assert.True(t, q.CheckAndConsume(ctx, "alpha", 1), "request %d should be allowed", i+1)
	}
	assert.False(t, q.CheckAndConsume(ctx, "alpha", 1))

	status := q.Status("alpha")
	assert.Equal(t, 3, status.DailyUsed)
	assert.Equal(t, 0, status.DailyRemaining)
}

func TestQuotaManager_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, true)
	q.Configure("alpha", 2, 0)
	require.True(t, q.CheckAndConsume(ctx, "alpha", 1))
	require.True(t, q.CheckAndConsume(ctx, "alpha", 1))

	// A fresh manager over the same storage sees the consumed quota.
	q2 := NewQuotaManager(ctx, st, true)
	assert.False(t, q2.CheckAndConsume(ctx, "alpha", 1))
	assert.Equal(t, 2, q2.Status("alpha").DailyUsed)
}

func TestQuotaManager_RateWindow(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, true)
	q.Configure("alpha", 0, 2)

	assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
	assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
	assert.False(t, q.CheckAndConsume(ctx, "alpha", 1))

	// Expire the window manually instead of sleeping a minute.
	q.mu.Lock()
	q.state.Providers["alpha"].WindowStart = q.state.Providers["alpha"].WindowStart.Add(-2 * time.Minute)
	q.mu.Unlock()

	assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
}

func TestQuotaManager_DailyReset(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, true)
	q.Configure("alpha", 1, 0)
	require.True(t, q.CheckAndConsume(ctx, "alpha", 1))
	require.False(t, q.CheckAndConsume(ctx, "alpha", 1))

	// Simulate the clock rolling over to a new day.
	q.mu.Lock()
	q.state.LastResetDate = "2000-01-01"
	q.mu.Unlock()

	assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
}

func TestQuotaManager_UnknownProviderUnlimited(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, true)
	for i := 0; i < 50; i++ {
		require.True(t, q.CheckAndConsume(ctx, "never-configured", 1))
	}
	assert.Equal(t, -1, q.Status("never-configured").DailyRemaining)
}

func TestQuotaManager_Disabled(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	q := NewQuotaManager(ctx, st, false)
	q.Configure("alpha", 1, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
	}
}

func TestQuotaManager_CorruptStateStartsFresh(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Write(ctx, quotaPath, []byte("{broken")))

	q := NewQuotaManager(ctx, st, true)
	q.Configure("alpha", 1, 0)
	assert.True(t, q.CheckAndConsume(ctx, "alpha", 1))
}
