// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"agrivoice/internal/common/logger"
	"agrivoice/internal/session"
	"agrivoice/internal/worker"
)

// Server exposes the query engine and the session bridge over HTTP.
type Server struct {
	engine *worker.Engine
	store  session.Store
	poller *session.Poller
	logger logger.Logger

	httpServer *http.Server
	interval   time.Duration

	// workerDeadline bounds background processing; it must exceed the
	// polling ceiling so the worker, not the poller, is never the first
	// to give up.
	workerDeadline time.Duration
}

func New(addr string, engine *worker.Engine, store session.Store, poller *session.Poller, interval, workerDeadline time.Duration, log logger.Logger) *Server {
	if workerDeadline <= 0 {
		workerDeadline = 90 * time.Second
	}
	s := &Server{
		engine:         engine,
		store:          store,
		poller:         poller,
		interval:       interval,
		workerDeadline: workerDeadline,
		logger: log.With(map[string]interface{}{
			"component": "http_server",
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/response", s.handleResponse)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/poll", s.handlePoll)
	mux.HandleFunc("/cleanup", s.handleCleanup)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
