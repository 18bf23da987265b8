package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colonyhq/colony/internal/handoff"
	"github.com/colonyhq/colony/internal/knowledge"
	"github.com/colonyhq/colony/internal/retrieval"
	"github.com/colonyhq/colony/pkg/cerr"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"status":      "ok",
		"discoveries": s.store.DiscoveryCount(),
		"signals":     s.store.SignalCount(),
		"pending":     s.queue.PendingCount(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if query == "" {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "missing query parameter q", nil))
		return
	}
	timeRange := retrieval.TimeRange(r.URL.Query().Get("time_range"))
	if timeRange == "" {
		timeRange = retrieval.RangeNoLimit
	}
	maxResults := queryInt(r, "max_results", 10)

	results, err := s.searcher.Search(ctx, query, timeRange, maxResults)
	if err != nil {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.Internal, "search failed", err))
		return
	}
	cerr.WriteJSON(ctx, w, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.WriteJSON(ctx, w, map[string]any{
		"providers": s.registry.List(),
		"health":    s.registry.HealthStatus(ctx),
	})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"providers": s.quota.AllStatus(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.WriteJSON(ctx, w, s.cache.Stats(ctx))
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed := s.cache.CleanupExpired(ctx)
	cerr.WriteJSON(ctx, w, map[string]any{"removed": removed})
}

func (s *Server) handleAddDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var d knowledge.Discovery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid discovery body", err))
		return
	}
	if d.Role == "" || d.Content == "" {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "role and content are required", nil))
		return
	}
	cerr.WriteJSON(ctx, w, s.store.AddDiscovery(d))
}

func (s *Server) handleAddSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var sig knowledge.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid signal body", err))
		return
	}
	if sig.Role == "" || sig.Evidence == "" {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "role and evidence are required", nil))
		return
	}
	cerr.WriteJSON(ctx, w, s.store.AddSignal(sig))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := knowledge.Filter{
		Role:         q.Get("role"),
		VerifiedOnly: q.Get("verified") == "true",
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, knowledge.SignalType(t))
	}
	for _, d := range q["dimension"] {
		filter.Dimensions = append(filter.Dimensions, knowledge.Dimension(d))
	}
	filter.Tags = q["tag"]
	if v := q.Get("min_confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinConfidence = f
		}
	}
	if v := q.Get("min_strength"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinStrength = f
		}
	}
	if v := q.Get("max_age"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			filter.MaxAge = d
		}
	}

	views := s.store.Query(filter, queryInt(r, "limit", 0))
	cerr.WriteJSON(ctx, w, map[string]any{
		"count":   len(views),
		"records": views,
	})
}

func (s *Server) handleHot(w http.ResponseWriter, r *http.Request) {
	views := s.store.TopByPheromone(queryInt(r, "limit", 10))
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"count":   len(views),
		"records": views,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights := s.store.Insights()
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"count":    len(insights),
		"insights": insights,
	})
}

func (s *Server) handleByDimension(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, s.store.GroupByDimension())
}

func (s *Server) handleByType(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, s.store.GroupByType())
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	view, ok := s.store.Get(id)
	if !ok {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.NotFound, "record not found", nil))
		return
	}
	cerr.WriteJSON(ctx, w, view)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	views := s.store.Related(id, queryInt(r, "max_hops", 2), queryInt(r, "limit", 20))
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"count":   len(views),
		"records": views,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Verifier string `json:"verifier"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid verify body", err))
		return
	}
	if body.Verifier == "" {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "verifier is required", nil))
		return
	}

	sig, ok := s.store.Verify(chi.URLParam(r, "id"), body.Verifier, body.Note)
	if !ok {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.NotFound, "signal not found", nil))
		return
	}
	cerr.WriteJSON(ctx, w, sig)
}

func (s *Server) handleCreateHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		FromRole string          `json:"from_role"`
		ToRole   string          `json:"to_role"`
		Priority string          `json:"priority"`
		Context  handoff.Context `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid handoff body", err))
		return
	}
	if body.FromRole == "" || body.ToRole == "" {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "from_role and to_role are required", nil))
		return
	}

	h := s.queue.Create(body.FromRole, body.ToRole, body.Context, handoff.ParsePriority(body.Priority))
	cerr.WriteJSON(ctx, w, h)
}

func (s *Server) handleListHandoffs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	handoffs := s.queue.ListByRoles(q.Get("from_role"), q.Get("to_role"))
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"count":    len(handoffs),
		"handoffs": handoffs,
	})
}

func (s *Server) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.NotFound, "handoff not found", nil))
		return
	}
	cerr.WriteJSON(ctx, w, h)
}

func (s *Server) handleCancelHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !s.queue.Cancel(id) {
		cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.FailedPrecondition, "handoff is not pending", nil))
		return
	}
	cerr.WriteJSON(ctx, w, map[string]any{"cancelled": id})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
