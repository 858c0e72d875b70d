package profilex

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DefaultEventWindow is how many recent lifecycle events the introspection
// endpoint returns.
var DefaultEventWindow = 50

// Handler is the thin HTTP surface over an Aggregator: the aggregate read
// endpoint, a manual override write, health, and refresh introspection.
type Handler struct {
	agg    *Aggregator
	router chi.Router
	logger *slog.Logger

	responses   ResponseCache
	eventWindow int

	// Manual overrides land on one designated source, restricted to a
	// whitelisted set of top-level payload fields.
	overrideSource string
	overrideFields map[string]bool
}

var _ http.Handler = &Handler{}

// NewHandler creates the HTTP handler for an aggregator.
func NewHandler(agg *Aggregator, opts ...HandlerOption) *Handler {
	if agg == nil {
		panic("aggregator is required")
	}

	h := &Handler{
		agg:         agg,
		logger:      slog.Default(),
		eventWindow: DefaultEventWindow,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Get("/profile/{subject}", h.getProfile)
	r.Put("/profile/{subject}", h.putProfile)
	r.Get("/debug/refreshes", h.refreshes)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "welcome to the profilex API"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := NormalizeSubject(chi.URLParam(r, "subject"))

	if h.responses != nil {
		if data, ok, err := h.responses.Get(ctx, subject); err == nil && ok {
			h.writeRaw(w, http.StatusOK, data)
			return
		} else if err != nil {
			h.logger.Warn("response cache read failed", "subject", subject, "error", err)
		}
	}

	resp := h.agg.Get(ctx, subject)
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to encode aggregate response", "subject", subject, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Degraded responses are served but not cached, so recovery is visible
	// on the very next request.
	if h.responses != nil && resp.ResponseSource != ResponseSourceFallback {
		if err := h.responses.Set(ctx, subject, data); err != nil {
			h.logger.Warn("response cache write failed", "subject", subject, "error", err)
		}
	}
	h.writeRaw(w, http.StatusOK, data)
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := NormalizeSubject(chi.URLParam(r, "subject"))

	if h.overrideSource == "" {
		http.Error(w, "profile overrides are not enabled", http.StatusMethodNotAllowed)
		return
	}
	src, ok := h.agg.registry.Lookup(h.overrideSource)
	if !ok {
		http.Error(w, "override source is not registered", http.StatusInternalServerError)
		return
	}

	var update map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "request body must be a JSON object", http.StatusBadRequest)
		return
	}

	current := src.Default
	rec, err := h.agg.store.Find(ctx, subject, src.Name)
	if err != nil && !IsErrRecordNotFound(err) {
		h.logger.Error("failed to load record for override", "subject", subject, "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if err == nil && len(rec.Payload) > 0 {
		current = rec.Payload
	}

	var payload map[string]json.RawMessage
	if len(current) > 0 {
		if err := json.Unmarshal(current, &payload); err != nil {
			h.logger.Warn("stored payload is not an object, replacing", "subject", subject, "error", err)
		}
	}
	if payload == nil {
		payload = make(map[string]json.RawMessage)
	}

	changed := false
	for field, value := range update {
		if h.overrideFields[field] {
			payload[field] = value
			changed = true
		}
	}
	if !changed {
		http.Error(w, "no overridable fields in request", http.StatusBadRequest)
		return
	}

	merged, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := NowFunc()
	if err := h.agg.store.Upsert(ctx, subject, src.Name, SuccessPatch(merged, now, h.agg.coord.successTTL)); err != nil {
		h.logger.Error("failed to persist override", "subject", subject, "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	if h.responses != nil {
		if err := h.responses.Del(ctx, subject); err != nil {
			h.logger.Warn("response cache invalidation failed", "subject", subject, "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]json.RawMessage{
		"message": json.RawMessage(`"profile updated"`),
		"profile": merged,
	})
}

func (h *Handler) refreshes(w http.ResponseWriter, r *http.Request) {
	status := h.agg.Status(h.eventWindow)
	if status.InFlight == nil {
		status.InFlight = []string{}
	}
	if status.Events == nil {
		status.Events = []Event{}
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeRaw(w, status, data)
}

func (h *Handler) writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// HandlerOption is a functional option for configuring a Handler
type HandlerOption func(*Handler)

// WithResponseCache puts a short-TTL cache of serialized responses in front
// of the aggregate endpoint.
func WithResponseCache(rc ResponseCache) HandlerOption {
	return func(h *Handler) {
		h.responses = rc
	}
}

// WithOverride enables PUT overrides on the named source for the given
// top-level payload fields.
func WithOverride(source string, fields ...string) HandlerOption {
	return func(h *Handler) {
		h.overrideSource = source
		h.overrideFields = make(map[string]bool, len(fields))
		for _, f := range fields {
			h.overrideFields[f] = true
		}
	}
}

// WithEventWindow sets how many recent events the introspection endpoint
// returns.
func WithEventWindow(n int) HandlerOption {
	return func(h *Handler) {
		h.eventWindow = n
	}
}

// WithHandlerLogger sets the logger for the handler.
// If not set, slog.Default() is used.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}
