package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/beetlebugorg/osmgeo/internal/config"
	"github.com/beetlebugorg/osmgeo/pkg/osmgeo"
)

type statusProvider interface {
	Status() osmgeo.Status
}

func newRouter(p statusProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return r
}

// statusServer serves conversion status. A nil server does nothing.
type statusServer struct {
	srv *http.Server
}

func newStatusServer(cfg config.Config, conv *osmgeo.Converter) *statusServer {
	if cfg.StatusAddr == "" {
		return nil
	}
	return &statusServer{srv: &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           newRouter(conv),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *statusServer) Start(log *osmgeo.Logger) {
	if s == nil {
		return
	}
	go func() {
		log.Info("status endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status endpoint failed", "error", err)
		}
	}()
}

func (s *statusServer) Shutdown(ctx context.Context) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
