// Package rest serves the stored corpus, derived features and scrape jobs
// over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/diamond/internal/logging"
)

// Server represents the REST API server.
type Server struct {
	server *http.Server
	log    *logging.Logger
}

// NewRouter wires every route onto a mux router.
func NewRouter(deps Deps) *mux.Router {
	log := deps.Logger.Component("rest")
	handler := NewHandler(deps)
	backfillHandler := NewBackfillHandler(deps.Backfill, deps.Failures)

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log))
	router.Use(CORSMiddleware)

	router.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Games
	api.HandleFunc("/games", handler.GetGamesByDate).Methods(http.MethodGet)
	api.HandleFunc("/games/{gameID:[0-9]+}", handler.GetGame).Methods(http.MethodGet)
	api.HandleFunc("/games/box-scores/{boxScoreID}", handler.GetGameByBoxScoreID).Methods(http.MethodGet)

	// Teams
	api.HandleFunc("/teams", handler.GetTeams).Methods(http.MethodGet)
	api.HandleFunc("/teams/{team}/games", handler.GetTeamGames).Methods(http.MethodGet)

	// Features
	api.HandleFunc("/features", handler.GetFeatures).Methods(http.MethodGet)

	// Backfill operations
	api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods(http.MethodGet)
	api.HandleFunc("/backfill/failures", backfillHandler.HandleBackfillFailures).Methods(http.MethodGet)
	api.HandleFunc("/backfill/jobs/{jobID:[0-9]+}", backfillHandler.HandleBackfillJob).Methods(http.MethodGet)

	return router
}

func NewServer(port string, deps Deps) *Server {
	return &Server{
		log: deps.Logger.Component("rest"),
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	s.log.Info("rest server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
