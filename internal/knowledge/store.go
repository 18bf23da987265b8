package knowledge

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store is the shared knowledge environment. Producers running on
// independent goroutines leave records here; later producers read the
// accumulated state instead of messaging each other directly. Every record
// carries a trail whose reference count grows as other records cite it,
// which drives the popularity ranking.
//
// Records are stored as immutable values; updates such as verification
// produce a new value that is swapped in atomically, so readers never
// observe a partially updated record.
type Store struct {
	mu          sync.RWMutex
	discoveries map[string]Discovery
	signals     map[string]Signal
	trails      map[string]*Trail
}

// NewStore creates an empty knowledge store.
func NewStore() *Store {
	return &Store{
		discoveries: make(map[string]Discovery),
		signals:     make(map[string]Signal),
		trails:      make(map[string]*Trail),
	}
}

// AddDiscovery stores a basic record, assigning id and timestamp when absent
// and clamping the quality score into [0,1]. Reference counts of cited
// records are incremented; citations of unknown ids are tolerated and
// simply leave no trail.
func (s *Store) AddDiscovery(d Discovery) Discovery {
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	d.Quality = clamp01(d.Quality)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.discoveries[d.ID] = d
	s.ensureTrail(d.ID)
	s.bumpReferences(d.References)
	return d
}

// AddSignal stores a typed record, assigning id and timestamp when absent
// and clamping confidence and strength into [0,1].
func (s *Store) AddSignal(sig Signal) Signal {
	if sig.ID == "" {
		sig.ID = ulid.Make().String()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	sig.Confidence = clamp01(sig.Confidence)
	sig.Strength = clamp01(sig.Strength)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals[sig.ID] = sig
	s.ensureTrail(sig.ID)
	s.bumpReferences(sig.References)
	return sig
}

// Get returns the normalized view of a record and touches its trail.
func (s *Store) Get(id string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trail, ok := s.trails[id]; ok {
		trail.LastAccessed = time.Now()
	}
	if sig, ok := s.signals[id]; ok {
		return sig.View(), true
	}
	if d, ok := s.discoveries[id]; ok {
		return d.View(), true
	}
	return View{}, false
}

// GetSignal returns the typed record for id, if it is one.
func (s *Store) GetSignal(id string) (Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if ok {
		if trail, tok := s.trails[id]; tok {
			trail.LastAccessed = time.Now()
		}
	}
	return sig, ok
}

// Query returns up to limit records matching the filter, ranked by trail
// score (reference count x weight). limit <= 0 means no limit.
func (s *Store) Query(f Filter, limit int) []View {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var views []View
	for _, sig := range s.signals {
		if f.matchesSignal(sig, now) {
			views = append(views, sig.View())
		}
	}
	for _, d := range s.discoveries {
		if f.matchesDiscovery(d, now) {
			views = append(views, d.View())
		}
	}

	s.sortByTrailScore(views)
	return truncate(views, limit)
}

// TopByPheromone returns the most popular records: score is reference count
// times weight, ties broken by most recent timestamp.
func (s *Store) TopByPheromone(limit int) []View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]View, 0, len(s.signals)+len(s.discoveries))
	for _, sig := range s.signals {
		views = append(views, sig.View())
	}
	for _, d := range s.discoveries {
		views = append(views, d.View())
	}

	s.sortByTrailScore(views)
	return truncate(views, limit)
}

// Related walks the reference graph outward from id, up to maxHops edges,
// and returns the reachable records ranked by weight. The starting record
// is included when present. Dangling references are skipped.
func (s *Store) Related(id string, maxHops, limit int) []View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool)
	frontier := []string{id}

	var views []View
	for hop := 0; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, rid := range frontier {
			if visited[rid] {
				continue
			}
			visited[rid] = true

			var view View
			var refs []string
			if sig, ok := s.signals[rid]; ok {
				view, refs = sig.View(), sig.References
			} else if d, ok := s.discoveries[rid]; ok {
				view, refs = d.View(), d.References
			} else {
				continue
			}
			views = append(views, view)
			next = append(next, refs...)
		}
		frontier = next
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Weight > views[j].Weight
	})
	return truncate(views, limit)
}

// Verify produces a verified copy of the signal with an appended debate
// annotation and swaps it in. Only typed records can be verified; for basic
// records or unknown ids the second return value is false.
func (s *Store) Verify(id, verifier, note string) (Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return Signal{}, false
	}
	verified := sig.withVerification(verifier, note)
	s.signals[id] = verified
	return verified, true
}

// Insight describes a record cited by roles other than its producer.
type Insight struct {
	RecordID       string   `json:"record_id"`
	Role           string   `json:"role"`
	Content        string   `json:"content"`
	ReferencedBy   []string `json:"referenced_by"`
	ReferenceCount int      `json:"reference_count"`
}

// Insights lists cross-role citations, most referenced first. A record
// appears only when at least one other role cites it.
func (s *Store) Insights() []Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	referrers := make(map[string]map[string]bool)
	collect := func(role string, refs []string) {
		for _, ref := range refs {
			if referrers[ref] == nil {
				referrers[ref] = make(map[string]bool)
			}
			referrers[ref][role] = true
		}
	}
	for _, sig := range s.signals {
		collect(sig.Role, sig.References)
	}
	for _, d := range s.discoveries {
		collect(d.Role, d.References)
	}

	var insights []Insight
	for id, byRole := range referrers {
		view, ok := s.viewLocked(id)
		if !ok {
			continue
		}
		var others []string
		for role := range byRole {
			if role != view.Role {
				others = append(others, role)
			}
		}
		if len(others) == 0 {
			continue
		}
		sort.Strings(others)

		count := 0
		if trail, ok := s.trails[id]; ok {
			count = trail.ReferenceCount
		}
		insights = append(insights, Insight{
			RecordID:       id,
			Role:           view.Role,
			Content:        view.Content,
			ReferencedBy:   others,
			ReferenceCount: count,
		})
	}
	sort.Slice(insights, func(i, j int) bool {
		return insights[i].ReferenceCount > insights[j].ReferenceCount
	})
	return insights
}

// GroupByDimension buckets all signals by dimension, strongest first
// within each bucket.
func (s *Store) GroupByDimension() map[Dimension][]Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[Dimension][]Signal)
	for _, sig := range s.signals {
		grouped[sig.Dimension] = append(grouped[sig.Dimension], sig)
	}
	for dim := range grouped {
		sort.SliceStable(grouped[dim], func(i, j int) bool {
			return grouped[dim][i].Strength > grouped[dim][j].Strength
		})
	}
	return grouped
}

// GroupByType buckets all signals by type, strongest first within each
// bucket.
func (s *Store) GroupByType() map[SignalType][]Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[SignalType][]Signal)
	for _, sig := range s.signals {
		grouped[sig.Type] = append(grouped[sig.Type], sig)
	}
	for st := range grouped {
		sort.SliceStable(grouped[st], func(i, j int) bool {
			return grouped[st][i].Strength > grouped[st][j].Strength
		})
	}
	return grouped
}

// Trail returns the trail entry for a record id.
func (s *Store) Trail(id string) (Trail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail, ok := s.trails[id]
	if !ok {
		return Trail{}, false
	}
	return *trail, true
}

// DiscoveryCount returns the number of basic records.
func (s *Store) DiscoveryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.discoveries)
}

// SignalCount returns the number of typed records.
func (s *Store) SignalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals)
}

// Clear drops all records and trails. Used between independent runs.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discoveries = make(map[string]Discovery)
	s.signals = make(map[string]Signal)
	s.trails = make(map[string]*Trail)
}

func (s *Store) ensureTrail(id string) {
	if _, ok := s.trails[id]; !ok {
		s.trails[id] = &Trail{}
	}
}

func (s *Store) bumpReferences(refs []string) {
	for _, ref := range refs {
		if trail, ok := s.trails[ref]; ok {
			trail.ReferenceCount++
		}
	}
}

func (s *Store) viewLocked(id string) (View, bool) {
	if sig, ok := s.signals[id]; ok {
		return sig.View(), true
	}
	if d, ok := s.discoveries[id]; ok {
		return d.View(), true
	}
	return View{}, false
}

func (s *Store) trailScore(v View) float64 {
	count := 0
	if trail, ok := s.trails[v.ID]; ok {
		count = trail.ReferenceCount
	}
	return float64(count) * v.Weight
}

func (s *Store) sortByTrailScore(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		si, sj := s.trailScore(views[i]), s.trailScore(views[j])
		if si != sj {
			return si > sj
		}
		return views[i].Timestamp.After(views[j].Timestamp)
	})
}

func truncate(views []View, limit int) []View {
	if limit > 0 && len(views) > limit {
		return views[:limit]
	}
	return views
}
