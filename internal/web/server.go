// Package web provides the read-only HTTP status page of the box.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	switches   gpio.Reader
	log        *slog.Logger
}

// New creates a Server that reads state from the given tracker. switches may
// be nil, in which case the switch column is left out.
func New(addr string, tracker *status.Tracker, switches gpio.Reader, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{tracker: tracker, switches: switches, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) readSwitches() *logic.SwitchMap {
	if s.switches == nil {
		return nil
	}
	m, err := s.switches.Read()
	if err != nil {
		s.log.Debug("switch read failed", "err", err)
		return nil
	}
	return &m
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.readSwitches()); err != nil {
		s.log.Warn("render status page", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap, s.readSwitches()))
}
