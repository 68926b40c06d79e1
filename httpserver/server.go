// Package httpserver serves the status of a running batch: liveness,
// readiness, per-stage progress and Prometheus metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
)

type HTTPServerConfig struct {
	ListenAddr  string
	EnablePprof bool
	Log         *slog.Logger

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg      *HTTPServerConfig
	isReady  atomic.Bool
	log      *slog.Logger
	progress *Progress

	srv      *http.Server
	listener net.Listener
}

// New creates a status server reporting progress. It is ready until
// MarkDone is called.
func New(cfg *HTTPServerConfig, progress *Progress) *Server {
	srv := &Server{
		cfg:      cfg,
		log:      cfg.Log,
		progress: progress,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/progress", srv.handleProgress)
	mux.Handle("/metrics", promhttp.HandlerFor(srv.progress.Registry(), promhttp.HandlerOpts{}))

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"done"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(srv.progress.Snapshot()); err != nil {
		srv.log.Error("Failed to encode progress", "err", err)
	}
}

// MarkDone flips readiness once the batch has finished.
func (srv *Server) MarkDone() {
	if srv.isReady.Swap(false) {
		srv.log.Info("Batch finished, server marked as not ready")
	}
}

// Addr returns the bound address once the server is running.
func (srv *Server) Addr() string {
	if srv.listener == nil {
		return srv.cfg.ListenAddr
	}
	return srv.listener.Addr().String()
}

// RunInBackground binds the listen address and serves until Shutdown.
func (srv *Server) RunInBackground() error {
	listener, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv.listener = listener

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", listener.Addr().String())
		if err := srv.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
	return nil
}

func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}
}
