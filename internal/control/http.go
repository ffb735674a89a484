// Package control exposes a running session over HTTP and gRPC.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/internal/observability"
	"github.com/signalsfoundry/study-session-simulator/internal/store"
	"github.com/signalsfoundry/study-session-simulator/kb"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// Session is the scheduler surface driven by the control plane.
type Session interface {
	Snapshot() core.ParameterSnapshot
	SetScenario(ctx context.Context, v float64) core.ParameterSnapshot
	StartSession(ctx context.Context) (string, error)
	EndSession(ctx context.Context) (model.SessionRecord, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stats() (processed, studied, leftUnstudied int)
	SessionID() string
	SetSpawnerActive(ctx context.Context, spawnerID string, active bool) error
}

// SiteToggler flips site activation in the venue.
type SiteToggler interface {
	SetSiteActive(id string, active bool) error
}

// ResultReader lists persisted sessions.
type ResultReader interface {
	Latest(ctx context.Context) (model.SessionRecord, error)
	List(ctx context.Context, limit int) ([]model.SessionRecord, error)
}

// HTTPHandlerConfig carries the optional collaborators of the HTTP surface.
type HTTPHandlerConfig struct {
	Sites   SiteToggler
	Results ResultReader
	Metrics *observability.ControlCollector
	Logger  logging.Logger
}

type scenarioRequest struct {
	Value *float64 `json:"value"`
}

type siteRequest struct {
	Active *bool `json:"active"`
}

type sessionStarted struct {
	SessionID string `json:"session_id"`
}

type statsResponse struct {
	SessionID     string `json:"session_id,omitempty"`
	Running       bool   `json:"running"`
	Paused        bool   `json:"paused"`
	LiveAgents    int    `json:"live_agents"`
	Processed     int    `json:"agents_processed"`
	Studied       int    `json:"studied_count"`
	LeftUnstudied int    `json:"left_unstudied_count"`
}

// NewHTTPHandler routes the control API onto a ServeMux.
func NewHTTPHandler(sess Session, cfg HTTPHandlerConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	h := &httpHandler{sess: sess, cfg: cfg, log: log}

	mux := http.NewServeMux()
	route := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, cfg.Metrics.InstrumentHandler(name, fn))
	}
	route("GET /parameters", "parameters", h.parameters)
	route("POST /scenario", "scenario", h.scenario)
	route("POST /sessions", "session_start", h.startSession)
	route("POST /sessions/end", "session_end", h.endSession)
	route("POST /pause", "pause", h.pause)
	route("POST /resume", "resume", h.resume)
	route("GET /stats", "stats", h.stats)
	route("POST /sites/{id}/active", "site_active", h.siteActive)
	route("POST /spawners/{id}/active", "spawner_active", h.spawnerActive)
	route("GET /results", "results", h.results)
	route("GET /results/latest", "results_latest", h.latestResult)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	return mux
}

type httpHandler struct {
	sess Session
	cfg  HTTPHandlerConfig
	log  logging.Logger
}

func (h *httpHandler) parameters(w http.ResponseWriter, r *http.Request) {
	snap := h.sess.Snapshot()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, snap.String()+"\n")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *httpHandler) scenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == nil {
		httpError(w, "missing value", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.SetScenario(r.Context(), *req.Value))
}

func (h *httpHandler) startSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.sess.StartSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionStarted{SessionID: id})
}

func (h *httpHandler) endSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sess.EndSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) pause(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Pause(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Resume(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) stats(w http.ResponseWriter, r *http.Request) {
	snap := h.sess.Snapshot()
	processed, studied, left := h.sess.Stats()
	resp := statsResponse{
		SessionID:     h.sess.SessionID(),
		Running:       snap.Running,
		Paused:        snap.Paused,
		LiveAgents:    snap.LiveAgents,
		Processed:     processed,
		Studied:       studied,
		LeftUnstudied: left,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) siteActive(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sites == nil {
		httpError(w, "site control unavailable", http.StatusNotImplemented)
		return
	}
	var req siteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		httpError(w, "missing active", http.StatusBadRequest)
		return
	}
	if err := h.cfg.Sites.SetSiteActive(r.PathValue("id"), *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

func (h *httpHandler) spawnerActive(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		httpError(w, "missing active", http.StatusBadRequest)
		return
	}
	if err := h.sess.SetSpawnerActive(r.Context(), r.PathValue("id"), *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) results(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Results == nil {
		httpError(w, "result store unavailable", http.StatusNotImplemented)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := h.cfg.Results.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *httpHandler) latestResult(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Results == nil {
		httpError(w, "result store unavailable", http.StatusNotImplemented)
		return
	}
	rec, err := h.cfg.Results.Latest(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeError maps package sentinels onto status codes.
func (h *httpHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrSessionRunning), errors.Is(err, core.ErrSessionNotRunning):
		code = http.StatusConflict
	case errors.Is(err, kb.ErrNotFound), errors.Is(err, core.ErrSiteNotFound), errors.Is(err, core.ErrSpawnerNotFound),
		errors.Is(err, store.ErrNoResults):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		h.log.Error(r.Context(), "control request failed",
			logging.String("path", r.URL.Path),
			logging.Err(err),
		)
	}
	httpError(w, err.Error(), code)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		httpError(w, "missing payload", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		httpError(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func httpError(w http.ResponseWriter, msg string, code int) {
	data, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
