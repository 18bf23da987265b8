package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyhq/colony/pkg/storage"
)

func TestStore_PersistRestoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	s := NewStore()
	a := s.AddDiscovery(Discovery{Role: "researcher", Content: "finding", Quality: 0.7})
	sig := s.AddSignal(Signal{Role: "analyst", Evidence: "insight", Type: TypeInsight, Strength: 0.6, Confidence: 0.8})
	s.AddDiscovery(Discovery{Role: "analyst", Content: "citing", Quality: 0.5, References: []string{a.ID}})

	require.NoError(t, s.Persist(ctx, st, "knowledge/snapshot.json"))

	s.Clear()
	require.Equal(t, 0, s.DiscoveryCount())

	require.True(t, s.Restore(ctx, st, "knowledge/snapshot.json"))
	assert.Equal(t, 2, s.DiscoveryCount())
	assert.Equal(t, 1, s.SignalCount())

	restored, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "finding", restored.Content)

	restoredSig, ok := s.GetSignal(sig.ID)
	require.True(t, ok)
	assert.Equal(t, TypeInsight, restoredSig.Type)

	trail, ok := s.Trail(a.ID)
	require.True(t, ok)
	assert.Equal(t, 1, trail.ReferenceCount)
}

func TestStore_RestoreMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	s := NewStore()
	s.AddDiscovery(Discovery{Role: "r", Content: "keep me", Quality: 0.5})

	assert.False(t, s.Restore(ctx, st, "knowledge/missing.json"))
	// In-memory state is untouched on failure.
	assert.Equal(t, 1, s.DiscoveryCount())
}

func TestStore_RestoreCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Write(ctx, "knowledge/snapshot.json", []byte("{not json")))

	s := NewStore()
	s.AddDiscovery(Discovery{Role: "r", Content: "keep me", Quality: 0.5})

	assert.False(t, s.Restore(ctx, st, "knowledge/snapshot.json"))
	assert.Equal(t, 1, s.DiscoveryCount())
}
