package httptransport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	healthCheckTimeout  = 2 * time.Second
)

type handlers struct {
	engine    Engine
	gameTypes func() []string
	records   RecordReader
	checks    map[string]HealthCheck
}

type actionRequest struct {
	PlayerID string         `json:"player_id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
}

type endRequest struct {
	Reason string `json:"reason"`
	Winner string `json:"winner"`
}

func sessionID(r *http.Request) string { return chi.URLParam(r, "session_id") }

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":          "ok",
		"active_sessions": h.engine.ActiveCount(),
	}
	code := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		results := make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body["checks"] = results
		if code != http.StatusOK {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, code, body)
}

func (h *handlers) listGameTypes(w http.ResponseWriter, _ *http.Request) {
	var names []string
	if h.gameTypes != nil {
		names = h.gameTypes()
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_types": names})
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	status := session.Status(r.URL.Query().Get("status"))
	switch status {
	case "", session.StatusWaiting, session.StatusActive, session.StatusEnded:
	default:
		writeBadRequest(w, "unknown status filter")
		return
	}
	items := h.engine.ListSessions(status)
	if items == nil {
		items = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if !decodeBody(w, r, &cfg) {
		return
	}
	snap, err := h.engine.CreateSession(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetState(sessionID(r), r.URL.Query().Get("viewer"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// respondState answers a mutation with the state as seen by viewer.
func (h *handlers) respondState(w http.ResponseWriter, r *http.Request, viewer string) {
	snap, err := h.engine.GetState(sessionID(r), viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) addPlayer(w http.ResponseWriter, r *http.Request) {
	var info session.PlayerInfo
	if !decodeBody(w, r, &info) {
		return
	}
	if info.ID == "" {
		writeBadRequest(w, "player id is required")
		return
	}
	if err := h.engine.AddPlayer(sessionID(r), info); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, info.ID)
}

func (h *handlers) removePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemovePlayer(sessionID(r), chi.URLParam(r, "player_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setReady(w http.ResponseWriter, r *http.Request) {
	req := protocol.ReadyPayload{Ready: true}
	if !decodeBody(w, r, &req) {
		return
	}
	playerID := chi.URLParam(r, "player_id")
	if err := h.engine.SetReady(sessionID(r), playerID, req.Ready); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, playerID)
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartSession(sessionID(r)); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, r.URL.Query().Get("viewer"))
}

func (h *handlers) processAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlayerID == "" || req.Type == "" {
		writeBadRequest(w, "player_id and type are required")
		return
	}
	action := session.Action{Type: req.Type, Data: req.Data}
	if err := h.engine.ProcessAction(sessionID(r), req.PlayerID, action); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, req.PlayerID)
}

func (h *handlers) endSession(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.EndSession(sessionID(r), req.Reason, req.Winner); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, "")
}

func (h *handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Load(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, protocol.ErrorPayload{
			Code:    protocol.ErrCodeNotFound,
			Message: protocol.ErrorMessages[protocol.ErrCodeNotFound],
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	ids, err := h.records.History(r.Context(), q.Get("game_type"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_ids": ids})
}
