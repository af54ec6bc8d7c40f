package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// StatusFunc builds the operator status report served on /status.
type StatusFunc func(ctx context.Context) (interface{}, error)

// Server exposes the health and status endpoints while the run loop is up.
type Server struct {
	srv *http.Server
}

func New(port string, status StatusFunc) *Server {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report, err := status(r.Context())
		if err != nil {
			logger.WithError(err).Error("/status report failed")
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.WithError(err).Error("/status encode error")
		}
	})

	return &Server{
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: r,
		},
	}
}

// Start serves in the background; the run loop owns shutdown.
func (s *Server) Start() {
	go func() {
		logger.Infof("Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
