// Package api exposes the read surface of the service: the published
// signal set over HTTP and WebSocket, plus health, status and metrics.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dexwatch/internal/domain"
	"dexwatch/internal/observability"
	"dexwatch/internal/scheduler"
)

// SignalSource is the scheduler-facing view the API reads from.
type SignalSource interface {
	// Results returns the latest published result set and whether any
	// set has been published yet.
	Results() ([]domain.SignalResult, bool)
	// Generating reports whether a tick is currently in flight.
	Generating() bool
	// Status reports the loop state.
	Status() scheduler.Status
}

// Server serves the read API. Create with New, mount Handler, and feed
// it published result sets through Publish.
type Server struct {
	source  SignalSource
	logger  *log.Logger
	started time.Time

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// Options for creating a Server.
type Options struct {
	// Required.
	Source SignalSource

	Logger *log.Logger
}

// New creates an API server over the given signal source.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		source:  opts.Source,
		logger:  logger,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the route mux for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", observability.DefaultMetrics.Handler())
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start runs the HTTP server on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) {
	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, s.Handler()); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// pendingResponse is the 202 body served before any result set exists.
type pendingResponse struct {
	Status string `json:"status"`
}

// handleSignals serves the latest published result set. Before the
// first tick completes it answers 202 with a status body, telling
// "pending" (no tick started) apart from "generating" (first tick in
// flight).
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, ok := s.source.Results()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		status := "pending"
		if s.source.Generating() {
			status = "generating"
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(pendingResponse{Status: status})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(results)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string           `json:"status"`
	Uptime      string           `json:"uptime"`
	Loop        scheduler.Status `json:"loop"`
	Subscribers int              `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	subscribers := len(s.clients)
	s.mu.Unlock()

	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Loop:        s.source.Status(),
		Subscribers: subscribers,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleWS upgrades the connection and registers it for result pushes.
// The current set, if any, is sent immediately on subscribe.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WARN: websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Printf("websocket subscriber connected from %s", r.RemoteAddr)

	if results, ok := s.source.Results(); ok {
		s.mu.Lock()
		if err := conn.WriteJSON(results); err != nil {
			s.dropLocked(conn)
		}
		s.mu.Unlock()
	}

	// Reader loop only detects close; inbound messages are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				s.dropLocked(conn)
				s.mu.Unlock()
				return
			}
		}
	}()
}

// Publish pushes a result set to every WebSocket subscriber. Wire it as
// the scheduler's OnPublish callback.
func (s *Server) Publish(results []domain.SignalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(results); err != nil {
			s.logger.Printf("WARN: dropping websocket subscriber: %v", err)
			s.dropLocked(conn)
		}
	}
}

// Close disconnects all WebSocket subscribers.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		s.dropLocked(conn)
	}
}

// dropLocked removes and closes one subscriber. Caller holds s.mu.
func (s *Server) dropLocked(conn *websocket.Conn) {
	if _, ok := s.clients[conn]; !ok {
		return
	}
	delete(s.clients, conn)
	conn.Close()
}
