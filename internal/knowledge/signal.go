package knowledge

import (
	"fmt"
	"time"
)

// SignalType classifies what kind of finding a signal represents.
type SignalType string

const (
	TypeInsight     SignalType = "insight"
	TypeThreat      SignalType = "threat"
	TypeOpportunity SignalType = "opportunity"
	TypeRisk        SignalType = "risk"
	TypeNeed        SignalType = "need"
)

// Dimension is the analysis axis a signal belongs to.
type Dimension string

const (
	DimensionProduct   Dimension = "product"
	DimensionTechnical Dimension = "technical"
	DimensionMarket    Dimension = "market"
	DimensionUX        Dimension = "ux"
	DimensionBusiness  Dimension = "business"
	DimensionTeam      Dimension = "team"
)

// Sentiment is the polarity of a signal.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Actionability indicates how urgently a signal calls for action.
type Actionability string

const (
	ActionImmediate     Actionability = "immediate"
	ActionShortTerm     Actionability = "short_term"
	ActionLongTerm      Actionability = "long_term"
	ActionInformational Actionability = "informational"
)

// Signal is the typed knowledge record shape: a structured finding with
// confidence, strength and verification state. Like Discovery, values are
// immutable; verification produces a new value.
type Signal struct {
	ID            string         `json:"id"`
	Type          SignalType     `json:"signal_type"`
	Dimension     Dimension      `json:"dimension"`
	Evidence      string         `json:"evidence"`
	Confidence    float64        `json:"confidence"`
	Strength      float64        `json:"strength"`
	Sentiment     Sentiment      `json:"sentiment"`
	Tags          []string       `json:"tags,omitempty"`
	Source        string         `json:"source,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	References    []string       `json:"references,omitempty"`
	Role          string         `json:"role"`
	Verified      bool           `json:"verified"`
	DebatePoints  []string       `json:"debate_points,omitempty"`
	Actionability Actionability  `json:"actionability"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// View returns the normalized read-only projection.
func (s Signal) View() View {
	return View{
		ID:         s.ID,
		Role:       s.Role,
		Content:    s.Evidence,
		Weight:     s.Strength,
		Timestamp:  s.Timestamp,
		References: s.References,
		Metadata:   s.Metadata,
	}
}

// Age returns how long ago the signal was produced.
func (s Signal) Age() time.Duration {
	return time.Since(s.Timestamp)
}

// Fresh reports whether the signal is younger than maxAge.
func (s Signal) Fresh(maxAge time.Duration) bool {
	return !s.Timestamp.IsZero() && s.Age() <= maxAge
}

// withVerification returns a verified copy with an appended debate
// annotation. The receiver is never mutated.
func (s Signal) withVerification(verifier, note string) Signal {
	verified := s

	verified.DebatePoints = append([]string(nil), s.DebatePoints...)
	if note != "" {
		verified.DebatePoints = append(verified.DebatePoints, fmt.Sprintf("%s: %s", verifier, note))
	}

	verified.Metadata = make(map[string]any, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		verified.Metadata[k] = v
	}
	verified.Metadata["verified_by"] = verifier

	verified.Tags = append([]string(nil), s.Tags...)
	verified.References = append([]string(nil), s.References...)
	verified.Verified = true
	return verified
}
