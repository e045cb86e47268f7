// Package server exposes the supervisor over HTTP: the control UI, the JSON
// API used to start runs, and the websocket stream observers connect to.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/entrhq/webpilot/pkg/broadcast"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	"github.com/entrhq/webpilot/pkg/supervisor"
)

const (
	apiTimeout        = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options wires a Server to the run supervisor and the event hub.
type Options struct {
	Config     *config.Config
	Supervisor *supervisor.Supervisor
	Hub        *broadcast.Hub
	Logger     *logging.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg    *config.Config
	sup    *supervisor.Supervisor
	hub    *broadcast.Hub
	log    *logging.Logger
	assets fs.FS

	router     chi.Router
	httpServer *http.Server

	// ctx is cancelled by Shutdown to release held stream connections.
	ctx     context.Context
	cancel  context.CancelFunc
	streams sync.WaitGroup
}

// New builds the router. Nothing listens until ListenAndServe.
func New(opts Options) (*Server, error) {
	if opts.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}
	if opts.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logging.MustLogger("server")
	}

	assets, err := staticAssets()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded UI: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    opts.Config,
		sup:    opts.Supervisor,
		hub:    opts.Hub,
		log:    opts.Logger,
		assets: assets,
		ctx:    ctx,
		cancel: cancel,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              opts.Config.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(s.assets)))
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// Websocket connections are long-lived and must not inherit the API timeout.
	r.Get("/ws/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Get("/providers", s.handleProviders)
			r.Get("/providers/{id}/models", s.handleProviderModels)
			r.Get("/status", s.handleStatus)
		})
		r.Post("/agent/run", s.handleRun)
	})

	s.router = r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Infof("Listening on http://%s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, releases held stream connections and
// waits for their handlers to return or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
