// Package httptransport exposes the session engine over HTTP.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/palemoky/turnstile/internal/game/session"
)

// Engine is the subset of *session.Engine the handlers drive.
type Engine interface {
	CreateSession(cfg session.Config) (*session.Snapshot, error)
	GetState(sessionID, viewerID string) (*session.Snapshot, error)
	ListSessions(status session.Status) []session.Summary
	ActiveCount() int
	AddPlayer(sessionID string, info session.PlayerInfo) error
	RemovePlayer(sessionID, playerID string) error
	SetReady(sessionID, playerID string, ready bool) error
	StartSession(sessionID string) error
	ProcessAction(sessionID, playerID string, action session.Action) error
	EndSession(sessionID, reason, winner string) error
}

// RecordReader reads ended session records back from durable storage.
type RecordReader interface {
	Load(ctx context.Context, id string) (*session.Snapshot, error)
	History(ctx context.Context, gameType string, limit int) ([]string, error)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps wires the router.
type Deps struct {
	Engine    Engine
	GameTypes func() []string
	Records   RecordReader           // optional
	WebSocket http.Handler           // optional, mounted at /ws
	Health    map[string]HealthCheck // optional, reported by /healthz
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) *chi.Mux {
	h := &handlers{engine: d.Engine, gameTypes: d.GameTypes, records: d.Records, checks: d.Health}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", h.health)
	if d.WebSocket != nil {
		r.Handle("/ws", d.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(AccessLog())

		r.Get("/game-types", h.listGameTypes)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Post("/", h.createSession)

			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", h.getState)
				r.Post("/start", h.startSession)
				r.Post("/end", h.endSession)
				r.Post("/actions", h.processAction)

				r.Post("/players", h.addPlayer)
				r.Delete("/players/{player_id}", h.removePlayer)
				r.Put("/players/{player_id}/ready", h.setReady)
			})
		})

		if d.Records != nil {
			r.Get("/records", h.listRecords)
			r.Get("/records/{session_id}", h.getRecord)
		}
	})
	return r
}
