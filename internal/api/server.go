// v1
// internal/api/server.go
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the engine's HTTP surface.
type Server struct {
	http *http.Server
	log  *slog.Logger
}

// NewRouter builds the route table. Split out of NewServer so tests can mount
// it on httptest servers.
func NewRouter(h *Handlers, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/health/live", h.Live).Methods("GET")
	r.HandleFunc("/health/ready", h.ReadyCheck).Methods("GET")
	r.HandleFunc("/status", h.Status).Methods("GET")
	r.HandleFunc("/config", h.Config).Methods("GET")
	r.HandleFunc("/units", h.Units).Methods("GET")
	r.HandleFunc("/units/{unitId}/snapshot", h.Snapshot).Methods("GET")
	r.HandleFunc("/units/{unitId}/actions", h.Actions).Methods("GET")
	r.HandleFunc("/units/{unitId}/comfort", h.Comfort).Methods("GET")
	r.HandleFunc("/units/{unitId}/journal", h.JournalTail).Methods("GET")
	r.HandleFunc("/units/{unitId}/setpoints", h.GetSetpoints).Methods("GET")
	r.HandleFunc("/units/{unitId}/setpoints", h.PutSetpoints).Methods("PUT")
	r.HandleFunc("/units/{unitId}/evaluate", h.Evaluate).Methods("POST")
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

// NewServer wires the router behind access logging and the configured
// timeouts.
func NewServer(addr string, h *Handlers, reg *prometheus.Registry, accessLog io.Writer, readTimeout, writeTimeout time.Duration) *Server {
	logged := handlers.LoggingHandler(accessLog, withAccessLog(h.Log, NewRouter(h, reg)))
	hs := &http.Server{
		Addr:              addr,
		Handler:           logged,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{http: hs, log: h.Log}
}

func (s *Server) Start() error {
	s.log.Info("http server starting", slog.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("http server stopping")
	return s.http.Shutdown(ctx)
}
