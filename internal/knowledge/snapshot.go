package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/colonyhq/colony/pkg/cerr"
	"github.com/colonyhq/colony/pkg/storage"
)

// snapshot is the on-disk document written by Persist: every record of both
// shapes plus the trail entries.
type snapshot struct {
	Discoveries []Discovery      `json:"discoveries"`
	Signals     []Signal         `json:"signals"`
	Trails      map[string]Trail `json:"trails"`
	SavedAt     time.Time        `json:"saved_at"`
}

// Persist writes a full snapshot of the store to path.
func (s *Store) Persist(ctx context.Context, st storage.Storage, path string) error {
	s.mu.RLock()
	snap := snapshot{
		Discoveries: make([]Discovery, 0, len(s.discoveries)),
		Signals:     make([]Signal, 0, len(s.signals)),
		Trails:      make(map[string]Trail, len(s.trails)),
		SavedAt:     time.Now(),
	}
	for _, d := range s.discoveries {
		snap.Discoveries = append(snap.Discoveries, d)
	}
	for _, sig := range s.signals {
		snap.Signals = append(snap.Signals, sig)
	}
	for id, trail := range s.trails {
		snap.Trails[id] = *trail
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := st.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError("knowledge snapshot", err)
	}
	return nil
}

// Restore replaces the store contents with the snapshot at path. On any
// failure (missing file, corrupt document) it returns false and leaves the
// in-memory state untouched.
func (s *Store) Restore(ctx context.Context, st storage.Storage, path string) bool {
	data, err := st.Read(ctx, path)
	if err != nil {
		return false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.WarnContext(ctx, "discarding corrupt knowledge snapshot", "path", path, "error", err)
		return false
	}

	discoveries := make(map[string]Discovery, len(snap.Discoveries))
	for _, d := range snap.Discoveries {
		discoveries[d.ID] = d
	}
	signals := make(map[string]Signal, len(snap.Signals))
	for _, sig := range snap.Signals {
		signals[sig.ID] = sig
	}
	trails := make(map[string]*Trail, len(snap.Trails))
	for id, trail := range snap.Trails {
		t := trail
		trails[id] = &t
	}

	s.mu.Lock()
	s.discoveries = discoveries
	s.signals = signals
	s.trails = trails
	s.mu.Unlock()
	return true
}
