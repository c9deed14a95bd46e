// Package server exposes a loaded directory over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Irkaa10/ensdir/directory"
	m "github.com/Irkaa10/ensdir/middleware"
	"github.com/Irkaa10/ensdir/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	dir           *directory.Directory
	logger        *slog.Logger
	bind          string
	metricsListen string
	router        *mux.Router
}

// New wires the routes over dir. The directory is only ever read.
func New(dir *directory.Directory, cfg models.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dir:           dir,
		logger:        logger,
		bind:          cfg.Bind,
		metricsListen: cfg.MetricsListen,
	}

	router := mux.NewRouter()
	router.Use(m.Logging(logger))
	router.HandleFunc("/ping", s.handlePing).Methods("GET", "HEAD")
	router.HandleFunc("/", s.handleStats).Methods("GET", "HEAD")
	router.HandleFunc("/ens/resolve/{name}", s.handleResolve).Methods("GET", "HEAD")
	s.router = router

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Run serves the API, and metrics when configured, until ctx is cancelled or
// a listener fails.
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{newHTTPServer(s.bind, s.router)}
	if s.metricsListen != "" {
		metrics := http.NewServeMux()
		metrics.Handle("/metrics", promhttp.Handler())
		servers = append(servers, newHTTPServer(s.metricsListen, metrics))
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		eg.Go(func() error {
			s.logger.Info("listening", "bind", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return eg.Wait()
}
