// Package httpapi exposes the persistence gateway over HTTP: the scraper
// posts records to its own API exactly the way an external producer would.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/internal/config"
	"github.com/gofix/dm-monitor/internal/store"
	"github.com/gofix/dm-monitor/pkg/types"
)

// StatusReporter supplies the operator-facing monitor status.
type StatusReporter interface {
	Status() types.MonitorStatus
}

// Server hosts the message and session API plus optional static pages.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	status StatusReporter
	logger *logrus.Logger
	http   *http.Server
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, st *store.Store, status StatusReporter, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		status: status,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/status", s.handleStatus)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.ListenAddr).Info("API server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
