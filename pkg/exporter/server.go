package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eg4monitor/eg4monitor/pkg/log"
)

// Server exposes the collector over /metrics with a /health liveness
// endpoint.
type Server struct {
	registry *prometheus.Registry

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server and registers its flags with lflag.
func Configured() *Server {
	s := &Server{
		registry: prometheus.NewRegistry(),
	}

	// Cloud Run-style PORT wins over the flag default.
	port := os.Getenv("PORT")
	if port == "" {
		port = "9100"
	}
	listenAddr := lflag.String("http-listen", ":"+port, "HTTP metrics listen address")

	lflag.Do(func() {
		s.listenAddr = *listenAddr
	})
	return s
}

// NewServer returns a Server listening on addr, for use without lflag.
func NewServer(addr string) *Server {
	return &Server{
		registry:   prometheus.NewRegistry(),
		listenAddr: addr,
	}
}

// Register adds a collector to the server's registry. Panics on duplicate
// registration like prometheus.MustRegister.
func (s *Server) Register(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return gziphandler.GzipHandler(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting metrics server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
