package knowledge

import (
	"time"
)

// SourceKind classifies where a discovery came from.
type SourceKind string

const (
	SourceWebsite       SourceKind = "website"
	SourceDocumentation SourceKind = "documentation"
	SourceNews          SourceKind = "news"
	SourceAnalysis      SourceKind = "analysis"
	SourceInference     SourceKind = "inference"
	SourceDebate        SourceKind = "debate"
)

// Discovery is the basic knowledge record shape: free-form content with a
// quality score. Values are immutable once stored; updates produce new values.
type Discovery struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Source     SourceKind     `json:"source"`
	Quality    float64        `json:"quality_score"`
	Timestamp  time.Time      `json:"timestamp"`
	References []string       `json:"references,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// View returns the normalized read-only projection shared by both record
// shapes.
func (d Discovery) View() View {
	return View{
		ID:         d.ID,
		Role:       d.Role,
		Content:    d.Content,
		Weight:     d.Quality,
		Timestamp:  d.Timestamp,
		References: d.References,
		Metadata:   d.Metadata,
	}
}

// View is the common projection of a knowledge record used by cross-cutting
// consumers that do not care which shape produced it. Weight is the quality
// score for discoveries and the strength for signals.
type View struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Weight     float64        `json:"weight"`
	Timestamp  time.Time      `json:"timestamp"`
	References []string       `json:"references,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Trail tracks how often a record is cited by later records, plus when it
// was last read. The reference count drives popularity ranking.
type Trail struct {
	ReferenceCount int       `json:"reference_count"`
	LastAccessed   time.Time `json:"last_accessed"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
