// Package api exposes an optional read-only HTTP monitor over a running
// simulation: a JSON status snapshot and a server-sent-events stream of
// market snapshots, grounded on server/server.go's handleStream SSE pattern
// generalised onto gorilla/mux routing.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ridesim/model"
)

// Server serves the monitor endpoints for one simulation run. It holds only
// the most recent snapshot; it never drives or mutates the simulation.
type Server struct {
	mu       sync.RWMutex
	last     model.Snapshot
	have     bool
	started  time.Time
	subs     map[chan model.Snapshot]struct{}
	subsMu   sync.Mutex
}

// New constructs a monitor server. Call Watch to start draining a
// simulation's Monitor() channel into it.
func New() *Server {
	return &Server{started: time.Now(), subs: map[chan model.Snapshot]struct{}{}}
}

// Watch drains snap until it closes (the simulation finished), fanning each
// snapshot out to the latest-value cache and to any active SSE subscribers.
// Intended to run in its own goroutine alongside Simulator.Run.
func (s *Server) Watch(snap <-chan model.Snapshot) {
	for sn := range snap {
		s.mu.Lock()
		s.last = sn
		s.have = true
		s.mu.Unlock()

		s.subsMu.Lock()
		for ch := range s.subs {
			select {
			case ch <- sn:
			default: // slow subscriber: drop this tick rather than block the watcher
			}
		}
		s.subsMu.Unlock()
	}
}

// Router builds the mux.Router exposing /status and /stream.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap, have := s.last, s.have
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !have {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan model.Snapshot, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}()
	flusher.Flush() // send headers now, once the subscriber is registered

	for {
		select {
		case sn, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(sn)
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", string(b))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// ListenAndServe starts the monitor HTTP server on addr; it blocks until the
// listener fails or the process exits. cmd/ridesim runs this in a goroutine
// only when config.MonitorAddr is non-empty.
func ListenAndServe(addr string, s *Server) error {
	return http.ListenAndServe(addr, s.Router())
}
