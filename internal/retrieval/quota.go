package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/colonyhq/colony/pkg/storage"
)

const quotaPath = "quota/usage.json"

// providerQuota is the persisted usage record for one provider.
type providerQuota struct {
	DailyLimit  int       `json:"daily_limit"` // 0 = unlimited
	DailyUsed   int       `json:"daily_used"`
	RateLimit   int       `json:"rate_limit"` // per minute, 0 = unlimited
	WindowStart time.Time `json:"window_start"`
	WindowUsed  int       `json:"window_used"`
}

// quotaState is the full persisted document. LastResetDate tracks the
// calendar day the daily counters belong to.
type quotaState struct {
	LastResetDate string                    `json:"last_reset_date"`
	Providers     map[string]*providerQuota `json:"providers"`
}

// QuotaManager enforces per-provider daily quotas and a rolling per-minute
// rate window. Usage is persisted after every consuming decision so limits
// survive process restarts.
type QuotaManager struct {
	mu      sync.Mutex
	st      storage.Storage
	enabled bool
	state   quotaState
}

// NewQuotaManager loads persisted usage from storage; a missing or corrupt
// document starts fresh.
func NewQuotaManager(ctx context.Context, st storage.Storage, enabled bool) *QuotaManager {
	q := &QuotaManager{
		st:      st,
		enabled: enabled,
		state: quotaState{
			LastResetDate: dayOf(time.Now()),
			Providers:     make(map[string]*providerQuota),
		},
	}
	if !enabled {
		return q
	}

	data, err := st.Read(ctx, quotaPath)
	if err != nil {
		return q
	}
	var loaded quotaState
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.WarnContext(ctx, "discarding corrupt quota state", "error", err)
		return q
	}
	if loaded.Providers == nil {
		loaded.Providers = make(map[string]*providerQuota)
	}
	q.state = loaded
	return q
}

// Configure sets the limits for a provider, keeping any existing usage.
func (q *QuotaManager) Configure(name string, dailyLimit, rateLimit int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq := q.ensure(name)
	pq.DailyLimit = dailyLimit
	pq.RateLimit = rateLimit
}

// CheckAndConsume reports whether the provider may spend cost requests right
// now and, if so, records the consumption. Exceeding either limit denies
// without erroring. The updated counters are persisted after every decision.
func (q *QuotaManager) CheckAndConsume(ctx context.Context, name string, cost int) bool {
	if !q.enabled {
		return true
	}
	if cost <= 0 {
		cost = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.resetIfNewDay(now)
	pq := q.ensure(name)

	if now.Sub(pq.WindowStart) >= time.Minute {
		pq.WindowStart = now
		pq.WindowUsed = 0
	}

	if pq.DailyLimit > 0 && pq.DailyUsed+cost > pq.DailyLimit {
		q.persist(ctx)
		return false
	}
	if pq.RateLimit > 0 && pq.WindowUsed+cost > pq.RateLimit {
		q.persist(ctx)
		return false
	}

	pq.DailyUsed += cost
	pq.WindowUsed += cost
	q.persist(ctx)
	return true
}

// QuotaStatus reports remaining capacity for one provider.
type QuotaStatus struct {
	Provider       string `json:"provider"`
	DailyLimit     int    `json:"daily_limit"`
	DailyUsed      int    `json:"daily_used"`
	DailyRemaining int    `json:"daily_remaining"` // -1 = unlimited
	RateLimit      int    `json:"rate_limit"`
	WindowUsed     int    `json:"window_used"`
}

// Status returns the current usage for a provider.
func (q *QuotaManager) Status(name string) QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetIfNewDay(time.Now())
	pq := q.ensure(name)

	remaining := -1
	if pq.DailyLimit > 0 {
		remaining = pq.DailyLimit - pq.DailyUsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return QuotaStatus{
		Provider:       name,
		DailyLimit:     pq.DailyLimit,
		DailyUsed:      pq.DailyUsed,
		DailyRemaining: remaining,
		RateLimit:      pq.RateLimit,
		WindowUsed:     pq.WindowUsed,
	}
}

// AllStatus returns usage for every known provider.
func (q *QuotaManager) AllStatus() []QuotaStatus {
	q.mu.Lock()
	names := make([]string, 0, len(q.state.Providers))
	for name := range q.state.Providers {
		names = append(names, name)
	}
	q.mu.Unlock()

	statuses := make([]QuotaStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, q.Status(name))
	}
	return statuses
}

func (q *QuotaManager) ensure(name string) *providerQuota {
	pq, ok := q.state.Providers[name]
	if !ok {
		pq = &providerQuota{}
		q.state.Providers[name] = pq
	}
	return pq
}

func (q *QuotaManager) resetIfNewDay(now time.Time) {
	today := dayOf(now)
	if q.state.LastResetDate == today {
		return
	}
	q.state.LastResetDate = today
	for _, pq := range q.state.Providers {
		pq.DailyUsed = 0
	}
}

func (q *QuotaManager) persist(ctx context.Context) {
	data, err := json.Marshal(q.state)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal quota state", "error", err)
		return
	}
	if err := q.st.Write(ctx, quotaPath, data); err != nil {
		slog.WarnContext(ctx, "failed to persist quota state", "error", err)
	}
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}
