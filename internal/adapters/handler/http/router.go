package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Tokens      ports.TokenService
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	// Realtime serves GET /api/ws. Optional.
	Realtime http.HandlerFunc
}

func NewHandler(cfg RouterConfig, pollHandler *PollHandler, voteHandler *VoteHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator(cfg.Tokens))

		r.Route("/polls", func(r chi.Router) {
			r.Post("/", pollHandler.CreatePoll)
			r.Get("/mine", pollHandler.ListMine)
			r.Get("/community", pollHandler.ListCommunity)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", pollHandler.GetPoll)
				r.Delete("/", pollHandler.DeletePoll)
				r.Patch("/status", pollHandler.SetStatus)
				r.Post("/votes", voteHandler.VoteOnPoll)
				r.Get("/my-vote", voteHandler.MyVote)
			})
		})

		if cfg.Realtime != nil {
			r.Get("/ws", cfg.Realtime)
		}
	})

	return r
}
