// Package server assembles the tropa HTTP server: the live scout wizard, its
// browser script, the read-only JSON API, health probes and metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gabrielmiguelok/tropa/client"
	"github.com/gabrielmiguelok/tropa/internal/api"
	"github.com/gabrielmiguelok/tropa/internal/config"
	"github.com/gabrielmiguelok/tropa/internal/registration"
	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/health"
	"github.com/gabrielmiguelok/tropa/pkg/live"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/lookup"
	"github.com/gabrielmiguelok/tropa/pkg/metrics"
	"github.com/gabrielmiguelok/tropa/pkg/router"
	"github.com/gabrielmiguelok/tropa/pkg/shutdown"
)

// apiRatePerSecond bounds JSON API requests per client.
const apiRatePerSecond = 20

// Options are the optional collaborators of a Server.
type Options struct {
	Logger  logging.Logger
	Metrics *metrics.Metrics
	Version string
}

// Server owns the HTTP surface and, once Serve starts, the database.
type Server struct {
	cfg     config.Config
	db      *storage.DB
	drafts  *storage.Drafts
	logger  logging.Logger
	metrics *metrics.Metrics
	live    *live.Handler
	health  *health.Checker
	handler http.Handler
	http    *http.Server
}

// New wires every component on top of an open, migrated database.
func New(cfg config.Config, db *storage.DB, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics("tropa")
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		drafts:  storage.NewDrafts(db),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	places := placeSources(storage.NewPlaces(db), cfg.Lookup, opts.Metrics)
	scouts := storage.NewScouts(db)

	s.live = live.NewHandler(
		registration.NewFactory(registration.Deps{
			Scouts:        scouts,
			Places:        places,
			Drafts:        s.drafts,
			SubmitTimeout: cfg.Timeouts.RequestTimeout,
			Logger:        opts.Logger,
			Metrics:       opts.Metrics,
		}),
		cfg.Config,
		live.WithLogger(opts.Logger),
		live.WithMetrics(opts.Metrics),
	)

	s.health = health.NewChecker(opts.Version, opts.Logger)
	s.health.AddCriticalCheck("sqlite", health.PingCheck(db), 2*time.Second)
	s.health.AddCheck("live_connections", health.CapacityCheck(s.live.Sockets().Count, cfg.MaxConnections), time.Second)

	s.handler = s.routes(scouts, places, opts.Version)
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func placeSources(places *storage.Places, cfg config.LookupConfig, m *metrics.Metrics) registration.PlaceSources {
	cached := func(level string, src lookup.Source) lookup.Source {
		return lookup.NewCachedSource(src, lookup.CacheConfig{
			Level:   level,
			Size:    cfg.CacheSize,
			TTL:     cfg.CacheTTL,
			Metrics: m,
		})
	}
	return registration.PlaceSources{
		Regions:    cached("region", places.Regions()),
		Subregions: cached("subregion", places.Subregions()),
		Localities: cached("locality", places.Localities()),
	}
}

func (s *Server) routes(scouts *storage.Scouts, places registration.PlaceSources, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(router.SecureHeaders(router.DefaultSecureHeadersConfig()))

	r.Get("/livez", s.health.LivenessHandler().ServeHTTP)
	r.Get("/healthz", s.health.ReadinessHandler().ServeHTTP)
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/live.js", client.Handler())

	r.Group(func(r chi.Router) {
		r.Use(router.VisitorCookie(registration.DraftCookie, s.cfg.Drafts.MaxAge))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/scouts/new", http.StatusFound)
		})
		r.Handle("/scouts/new", s.live)
		r.Handle("/scouts/{id}/edit", s.live)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.RateLimit(apiRatePerSecond, 0))
		api.New(r, api.Config{
			Scouts:  scouts,
			Places:  places,
			Health:  s.health,
			Version: version,
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// PurgeDrafts deletes drafts untouched for longer than drafts.max_age.
func (s *Server) PurgeDrafts(ctx context.Context) (int64, error) {
	n, err := s.drafts.Purge(ctx, s.cfg.Drafts.MaxAge)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged stale drafts", logging.Int("count", int(n)))
	}
	return n, nil
}

func (s *Server) purgeLoop(ctx context.Context) {
	if s.cfg.Drafts.PurgeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Drafts.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeDrafts(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("draft purge failed", logging.Err(err))
			}
		}
	}
}

// Run listens on the configured address and serves until ctx is done or a
// termination signal arrives.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln. On the way out it closes live connections first, then
// drains HTTP requests, stops the draft purge job and closes the database,
// all within timeouts.shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	jobs, stopJobs := context.WithCancel(context.Background())
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		s.purgeLoop(jobs)
	}()

	sh := shutdown.NewHandler(shutdown.Config{
		Timeout: s.cfg.Timeouts.GracefulShutdown,
		Logger:  s.logger,
	})
	sh.RegisterFunc("live", shutdown.PriorityLive, s.live.Shutdown)
	sh.RegisterFunc("http", shutdown.PriorityHTTP, s.http.Shutdown)
	sh.RegisterFunc("draft-purge", shutdown.PriorityJobs, func(ctx context.Context) error {
		stopJobs()
		select {
		case <-jobsDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sh.RegisterCloser("sqlite", shutdown.PriorityDB, s.db)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(ln)
	}()
	s.logger.Info("tropa listening", logging.String("addr", ln.Addr().String()))

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- sh.Wait(ctx)
	}()

	select {
	case err := <-waitErr:
		s.logger.Info("tropa stopped")
		return err
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return <-waitErr
		}
		s.logger.Error("http server failed", logging.Err(err))
		return errors.Join(err, sh.Shutdown())
	}
}
