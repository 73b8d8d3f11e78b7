package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"interlink/internal/analyzer"
	"interlink/internal/domain"
	"interlink/internal/logger"
	"interlink/internal/service"
)

// maxPayload bounds relay request bodies
const maxPayload = 10 << 20

// Engine is the part of service.Engine the API serves
type Engine interface {
	RefreshProfiles(ctx context.Context) (*service.RefreshResult, error)
	Analyze(ctx context.Context) (*domain.CompatibilityMap, error)
	Connect(ctx context.Context, a, b string) (domain.Connection, error)
	Disconnect(ctx context.Context, a, b string) domain.Connection
	Send(ctx context.Context, connectionID string, payload []byte) ([]byte, error)
	GetConnectionState(a, b string) (domain.Connection, error)
	GetConnection(connectionID string) (domain.Connection, error)
	Profiles() []domain.SystemProfile
	Profile(id string) (domain.SystemProfile, error)
	Compatibility() *domain.CompatibilityMap
	AnalysisStats() analyzer.Stats
	Connections() []domain.Connection
	RequestRefresh()
	RequestAnalysis()
}

// API serves the interlink REST endpoints
type API struct {
	engine Engine
	log    logger.Logger
}

// NewAPI creates the API handler
func NewAPI(engine Engine, log logger.Logger) *API {
	return &API{engine: engine, log: log.WithComponent("api")}
}

// Register installs all routes on mux. events may be nil; gatherer may be nil.
func (h *API) Register(mux *http.ServeMux, events http.Handler, gatherer prometheus.Gatherer) {
	mux.HandleFunc("GET /api/profiles", h.ListProfiles)
	mux.HandleFunc("GET /api/profiles/{id}", h.GetProfile)
	mux.HandleFunc("POST /api/refresh", h.Refresh)

	mux.HandleFunc("GET /api/compatibility", h.GetCompatibility)
	mux.HandleFunc("GET /api/compatibility/{id}", h.GetSystemCompatibility)
	mux.HandleFunc("POST /api/analyze", h.Analyze)

	mux.HandleFunc("GET /api/connections", h.ListConnections)
	mux.HandleFunc("POST /api/connections", h.Connect)
	mux.HandleFunc("DELETE /api/connections", h.Disconnect)
	mux.HandleFunc("GET /api/connections/state", h.GetConnectionState)
	mux.HandleFunc("GET /api/connections/{id}", h.GetConnection)
	mux.HandleFunc("POST /api/connections/{id}/send", h.Send)

	mux.HandleFunc("GET /healthz", h.Health)

	if events != nil {
		mux.Handle("GET /events", events)
	}
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// ListProfiles returns every stored profile
func (h *API) ListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Profiles(), http.StatusOK)
}

// GetProfile returns one profile
func (h *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Profile(r.PathValue("id"))
	if err != nil {
		h.fail(w, "Failed to get profile", err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

// Refresh runs discovery. With ?async=true it only schedules a refresh on the
// engine loop and returns 202.
func (h *API) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		h.engine.RequestRefresh()
		writeJSON(w, map[string]string{"status": "refresh_requested"}, http.StatusAccepted)
		return
	}

	res, err := h.engine.RefreshProfiles(r.Context())
	if err != nil {
		h.fail(w, "Failed to refresh profiles", err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

// CompatibilityView is the JSON form of a compatibility map
type CompatibilityView struct {
	Generation uint64                       `json:"generation"`
	BuiltAt    time.Time                    `json:"built_at"`
	Stats      analyzer.Stats               `json:"stats"`
	Systems    map[string]map[string][]Peer `json:"systems"`
}

// Peer is one compatible remote interface
type Peer struct {
	SystemID  string `json:"system_id"`
	Interface string `json:"interface"`
}

func systemView(cm *domain.CompatibilityMap, id string) map[string][]Peer {
	out := make(map[string][]Peer)
	for _, name := range cm.Interfaces(id) {
		peers := []Peer{}
		for _, ep := range cm.Peers(domain.Endpoint{SystemID: id, Interface: name}) {
			peers = append(peers, Peer{SystemID: ep.SystemID, Interface: ep.Interface})
		}
		out[name] = peers
	}
	return out
}

// GetCompatibility returns the current map, or 404 before the first analysis
func (h *API) GetCompatibility(w http.ResponseWriter, r *http.Request) {
	cm := h.engine.Compatibility()
	if cm == nil {
		writeError(w, "No compatibility map", "analysis has not completed yet", http.StatusNotFound)
		return
	}

	view := CompatibilityView{
		Generation: cm.Generation(),
		BuiltAt:    cm.BuiltAt(),
		Stats:      h.engine.AnalysisStats(),
		Systems:    make(map[string]map[string][]Peer),
	}
	for _, id := range cm.Systems() {
		view.Systems[id] = systemView(cm, id)
	}
	writeJSON(w, view, http.StatusOK)
}

// GetSystemCompatibility returns the interface map of one system
func (h *API) GetSystemCompatibility(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cm := h.engine.Compatibility()
	if !cm.HasSystem(id) {
		writeError(w, "Not found", "system "+id+" is not in the compatibility map", http.StatusNotFound)
		return
	}
	writeJSON(w, systemView(cm, id), http.StatusOK)
}

// Analyze runs a compatibility pass. With ?async=true it only schedules one.
func (h *API) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		h.engine.RequestAnalysis()
		writeJSON(w, map[string]string{"status": "analysis_requested"}, http.StatusAccepted)
		return
	}

	if _, err := h.engine.Analyze(r.Context()); err != nil {
		h.fail(w, "Analysis failed", err)
		return
	}
	writeJSON(w, h.engine.AnalysisStats(), http.StatusOK)
}

// ListConnections returns every tracked connection, or with ?system= only the
// connections that involve that system
func (h *API) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.engine.Connections()
	if system := r.URL.Query().Get("system"); system != "" {
		conns = slices.DeleteFunc(conns, func(c domain.Connection) bool {
			return !c.Pair.Involves(system)
		})
	}
	writeJSON(w, conns, http.StatusOK)
}

// PairRequest names two systems
type PairRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Connect establishes a connection and waits for it to settle
func (h *API) Connect(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.A == "" || req.B == "" {
		writeError(w, "Both systems required", "provide a and b", http.StatusBadRequest)
		return
	}

	conn, err := h.engine.Connect(r.Context(), req.A, req.B)
	if err != nil {
		h.fail(w, "Failed to connect", err)
		return
	}
	writeJSON(w, conn, http.StatusOK)
}

func pairQuery(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		writeError(w, "Both systems required", "provide ?a= and &b=", http.StatusBadRequest)
		return "", "", false
	}
	return a, b, true
}

// Disconnect closes the connection between ?a= and &b=. It always succeeds.
func (h *API) Disconnect(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pairQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.engine.Disconnect(r.Context(), a, b), http.StatusOK)
}

// GetConnectionState returns the connection between ?a= and &b=
func (h *API) GetConnectionState(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pairQuery(w, r)
	if !ok {
		return
	}
	conn, err := h.engine.GetConnectionState(a, b)
	if err != nil {
		h.fail(w, "Failed to get connection", err)
		return
	}
	writeJSON(w, conn, http.StatusOK)
}

// GetConnection returns a connection by ID
func (h *API) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.engine.GetConnection(r.PathValue("id"))
	if err != nil {
		h.fail(w, "Failed to get connection", err)
		return
	}
	writeJSON(w, conn, http.StatusOK)
}

// Send relays the raw request body and writes back the raw response
func (h *API) Send(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
	if err != nil {
		writeError(w, "Failed to read request body", err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := h.engine.Send(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		h.fail(w, "Send failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// Health reports liveness plus a few counters
func (h *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"profiles":    len(h.engine.Profiles()),
		"connections": len(h.engine.Connections()),
		"generation":  h.engine.Compatibility().Generation(),
	}, http.StatusOK)
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIncompatible), errors.Is(err, domain.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnreachable), errors.Is(err, domain.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransientTransport), errors.Is(err, domain.ErrPermanentFailure),
		errors.Is(err, domain.ErrCredentials):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *API) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn().Err(err).Int("status", status).Str("response", msg).Msg("request failed")
	}
	writeJSON(w, ErrorResponse{
		Error:   msg,
		Details: err.Error(),
		Kind:    string(domain.KindOf(err)),
	}, status)
}

// Helper functions

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: msg, Details: details}, statusCode)
}
