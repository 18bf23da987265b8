package knowledge

import (
	"slices"
	"time"
)

// Filter selects records in Store.Query. Zero values match everything.
// Constraints that only exist on the typed shape (types, dimensions,
// confidence, verification) exclude basic discoveries when set.
type Filter struct {
	Role          string
	Types         []SignalType
	Dimensions    []Dimension
	MinConfidence float64
	MinStrength   float64
	VerifiedOnly  bool
	MaxAge        time.Duration
	Tags          []string
}

func (f Filter) typedOnly() bool {
	return len(f.Types) > 0 || len(f.Dimensions) > 0 || f.MinConfidence > 0 || f.VerifiedOnly
}

func (f Filter) matchesSignal(s Signal, now time.Time) bool {
	if f.Role != "" && s.Role != f.Role {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, s.Type) {
		return false
	}
	if len(f.Dimensions) > 0 && !slices.Contains(f.Dimensions, s.Dimension) {
		return false
	}
	if s.Confidence < f.MinConfidence {
		return false
	}
	if s.Strength < f.MinStrength {
		return false
	}
	if f.VerifiedOnly && !s.Verified {
		return false
	}
	if f.MaxAge > 0 && now.Sub(s.Timestamp) > f.MaxAge {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(s.Tags, f.Tags) {
		return false
	}
	return true
}

func (f Filter) matchesDiscovery(d Discovery, now time.Time) bool {
	if f.typedOnly() {
		return false
	}
	if f.Role != "" && d.Role != f.Role {
		return false
	}
	if d.Quality < f.MinStrength {
		return false
	}
	if f.MaxAge > 0 && now.Sub(d.Timestamp) > f.MaxAge {
		return false
	}
	// Discoveries carry no tags.
	if len(f.Tags) > 0 {
		return false
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, tag := range want {
		if slices.Contains(have, tag) {
			return true
		}
	}
	return false
}
