// ABOUTME: Relay HTTP server: one websocket hub per board name behind a chi router.
// ABOUTME: Also serves the read-only board mirror as JSON, exports and an SSE stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// ErrInvalidBoardName is returned for board names outside [A-Za-z0-9._-]{1,64}.
var ErrInvalidBoardName = errors.New("invalid board name")

var boardNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Server relays board envelopes between websocket clients. It never joins a
// board and never originates envelopes.
type Server struct {
	router   chi.Router
	addr     string
	verbose  bool
	upgrader websocket.Upgrader

	mu     sync.Mutex
	boards map[string]*boardRelay
}

// ServerConfig holds the configuration for the relay server.
type ServerConfig struct {
	Addr    string // listen address (default: "127.0.0.1:7780")
	Verbose bool   // log every mirrored envelope
}

// NewServer creates a relay server and its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7780"
	}
	s := &Server{
		addr:    cfg.Addr,
		verbose: cfg.Verbose,
		boards:  map[string]*boardRelay{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Terminal clients send no Origin header; browsers are not a target.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down and drops
// every relayed connection.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("component=web action=listen addr=%s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay listen %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

// Close disconnects every board's clients. Hijacked websocket connections
// are not tracked by http.Server, so they are closed here.
func (s *Server) Close() {
	s.mu.Lock()
	boards := s.boards
	s.boards = map[string]*boardRelay{}
	s.mu.Unlock()
	for _, b := range boards {
		b.close()
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(relayRequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/boards/{board}", func(r chi.Router) {
		r.Get("/", s.handleBoardState)
		r.Get("/ws", s.handleRelay)
		r.Get("/events", s.handleBoardEvents)
		r.Get("/export.md", s.handleExportMarkdown)
		r.Get("/export.html", s.handleExportHTML)
		r.Get("/export.yaml", s.handleExportYAML)
	})
	return r
}

// relay returns the relay for a board, creating it when create is set.
func (s *Server) relay(name string, create bool) (*boardRelay, error) {
	if !boardNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoardName, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[name]
	if !ok && create {
		b = newBoardRelay(name, s.verbose)
		s.boards[name] = b
		log.Printf("component=web action=board_opened board=%s", name)
	}
	return b, nil
}

// handleHealth reports liveness and how many boards have a hub.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	boards := len(s.boards)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "boards": boards})
}

// handleRelay upgrades to a websocket and relays frames for the board.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	b, err := s.relay(chi.URLParam(r, "board"), true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("component=web action=upgrade_failed board=%s err=%v", b.name, err)
		return
	}
	if err := b.attach(ws, r.RemoteAddr); err != nil {
		log.Printf("component=web action=attach_failed board=%s err=%v", b.name, err)
		_ = ws.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("component=web action=encode_failed err=%v", err)
	}
}
