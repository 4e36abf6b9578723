package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/manager"
	"github.com/necpgame/combat-session-engine/internal/metrics"
	"github.com/necpgame/combat-session-engine/internal/ws"
)

// SetupRoutes mounts one endpoint per session operation plus the read and
// streaming surfaces.
func SetupRoutes(m *manager.Manager, prom *metrics.Metrics, logger *zap.Logger) http.Handler {
	api := &API{mgr: m, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	if prom != nil {
		r.Handle("/metrics", prom.Handler())
	}
	r.Get("/ws", ws.Handler(m, logger))

	r.Post("/sessions", api.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", api.GetState)
		r.Get("/log", api.GetLog)
		r.Get("/metrics", api.GetMetrics)
		r.Post("/start", api.Start)
		r.Post("/join", api.Join)
		r.Post("/actions", api.Act)
		r.Post("/end-turn", api.EndTurn)
		r.Post("/revive", api.Revive)
		r.Post("/surrender", api.Surrender)
		r.Post("/abort", api.Abort)
		r.Post("/complete", api.Complete)
		r.Post("/pause", api.Pause)
		r.Post("/resume", api.Resume)
		r.Post("/simulate", api.Simulate)
	})
	return r
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
