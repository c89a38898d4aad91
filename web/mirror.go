// ABOUTME: Read-only handlers over a board's mirrored state: JSON, Markdown, HTML, YAML and SSE.
// ABOUTME: The SSE stream forwards every relayed envelope as "event: <kind>" with periodic heartbeats.
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/retroboard/board/core"
	"github.com/2389-research/retroboard/board/export"
)

// sseHeartbeatInterval is how often the SSE handler sends keep-alive comments.
const sseHeartbeatInterval = 15 * time.Second

// mirrorState resolves the board in the URL to its mirrored state, writing
// the error response itself when there is none.
func (s *Server) mirrorState(w http.ResponseWriter, r *http.Request) (string, *core.State, bool) {
	name := chi.URLParam(r, "board")
	b, err := s.relay(name, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", nil, false
	}
	if b == nil {
		http.Error(w, "board not found", http.StatusNotFound)
		return "", nil, false
	}
	state := b.snapshot()
	return name, state, true
}

// handleBoardState returns the mirrored board in FULL_STATE_SYNC shape.
func (s *Server) handleBoardState(w http.ResponseWriter, r *http.Request) {
	_, state, ok := s.mirrorState(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	name, state, ok := s.mirrorState(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = fmt.Fprint(w, export.ExportMarkdown(name, state))
}

func (s *Server) handleExportHTML(w http.ResponseWriter, r *http.Request) {
	name, state, ok := s.mirrorState(w, r)
	if !ok {
		return
	}
	page, err := export.ExportHTML(name, state)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, page)
}

func (s *Server) handleExportYAML(w http.ResponseWriter, r *http.Request) {
	name, state, ok := s.mirrorState(w, r)
	if !ok {
		return
	}
	doc, err := export.ExportYAML(name, state)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = fmt.Fprint(w, doc)
}

// handleBoardEvents streams relayed envelopes as server-sent events. The
// stream opens the board's hub if nobody has joined it yet.
func (s *Server) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	b, err := s.relay(chi.URLParam(r, "board"), true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	frames, stop, err := b.watch()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	ctx := r.Context()

	for {
		select {
		case frame := <-frames:
			env, err := core.Decode(frame)
			if err != nil {
				continue
			}
			// Re-encoding keeps the data line free of embedded newlines.
			data, err := core.Encode(env)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Kind, data)
			flusher.Flush()

		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}
