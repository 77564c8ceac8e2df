// Package websocket streams scrape job progress to live subscribers.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fortuna/diamond/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves /ws/backfill and /ws/health.
type Server struct {
	hub    *Hub
	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger
}

// NewServer creates the server and starts its hub. The hub accepts
// broadcasts before Start is called.
func NewServer(port string, log *logging.Logger) *Server {
	log = log.Component("websocket")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{hub: NewHub(log), ctx: ctx, cancel: cancel, log: log}
	go s.hub.Run(ctx)

	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub exposes the broadcast side for the backfill service.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/backfill", s.handleBackfill)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

func (s *Server) Start() error {
	s.log.Info("websocket server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}

	c := NewClient(uuid.NewString(), conn, s.hub, s.log)
	s.hub.Register(c)

	// Pumps outlive the request, so they follow the server context.
	go c.WritePump(s.ctx)
	go c.ReadPump(s.ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": "diamond-ws",
		"metrics": s.hub.Metrics(),
	})
}

// Shutdown stops accepting connections and closes every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.server.Shutdown(ctx)
}
