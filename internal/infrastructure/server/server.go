package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/apiclient-shell/internal/api/middleware"
	"github.com/GriffinCanCode/apiclient-shell/internal/api/ws"
	"github.com/GriffinCanCode/apiclient-shell/internal/bindings"
	"github.com/GriffinCanCode/apiclient-shell/internal/broadcast"
	"github.com/GriffinCanCode/apiclient-shell/internal/firstrun"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/paths"
	"github.com/GriffinCanCode/apiclient-shell/internal/store"
	"github.com/GriffinCanCode/apiclient-shell/internal/windows"
	"github.com/GriffinCanCode/apiclient-shell/internal/worker"
)

// PageBroadcast is the relay page loaded into the hidden broadcast window.
const PageBroadcast = "/io/Broadcast.html"

// Server wraps the controller and its dependencies
type Server struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	db         *store.DB
	bus        *broadcast.Bus
	registry   *windows.Registry
	supervisor *worker.Supervisor
	router     *bindings.Router
	hub        *ws.Hub
	gate       *firstrun.Gate
	engine     *gin.Engine
	listener   net.Listener
	http       *http.Server
	base       string

	quit      chan struct{}
	quitOnce  sync.Once
	closeOnce sync.Once
}

// New builds the controller. Nothing is spawned or opened until Run.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	home := paths.Home(cfg.App.Home)
	if home == "" {
		return nil, config.ErrAppHomeNotSet
	}

	logger.Info("Initializing API Client shell",
		zap.String("home", home.String()),
		zap.String("version", cfg.App.Version),
		zap.Bool("dev", cfg.App.Dev),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	db, err := store.Open(home.Database())
	if err != nil {
		return nil, err
	}
	envs := store.NewEnvironments(db.Bucket(store.EnvironmentsBucket))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracing.New("controller", logger),
		db:       db,
		listener: listener,
		base:     baseURL(listener.Addr()),
		quit:     make(chan struct{}),
	}

	s.bus = broadcast.NewBus(broadcast.Channel, nil, logger, metrics)
	s.registry = windows.NewRegistry(logger, s.requestQuit).WithObserver(metrics)
	s.bus.SetRelays(s.registry)

	s.supervisor = worker.NewSupervisor(worker.Options{
		Env:         cfg.WorkerEnv(),
		CallTimeout: cfg.Worker.CallTimeout,
		StopTimeout: cfg.Worker.StopTimeout,
		Tracer:      s.tracer,
	}, logger, metrics)

	s.router = bindings.NewRouter(logger, metrics).WithTracer(s.tracer)
	hubOpts := ws.DefaultOptions()
	hubOpts.Opener = opener(cfg.App.Opener)
	hubOpts.AllowedOrigins = []string{s.base}
	s.hub = ws.NewHub(hubOpts, s.router, s.registry, logger)

	handlers := []bindings.Handler{
		bindings.NewConfiguration(db.Bucket(store.LocalBucket), store.NewSession(), envs, s.bus),
		bindings.NewFiles(logger),
		bindings.NewNavigation(s.base, s.hub, s.registry, logger),
		bindings.NewProxy(s.supervisor),
		bindings.NewLogger(logger),
	}
	for _, h := range handlers {
		if err := s.router.Register(h); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.gate = firstrun.NewGate(firstrun.Options{
		Base:          s.base,
		SkipTelemetry: cfg.App.SkipTelemetry,
		LockFile:      home.TelemetryLock(),
		MainQuery:     cfg.App.ProtocolFile.Query(),
	}, s.hub, s.registry, s.bus, envs, logger)

	if s.engine, err = s.routes(); err != nil {
		s.Close()
		return nil, err
	}
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully", zap.String("base", s.base))
	return s, nil
}

func (s *Server) routes() (*gin.Engine, error) {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	cors := middleware.DefaultCORSConfig()
	cors.Origins = []string{s.base}
	router.Use(middleware.CORS(cors))
	if s.cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Float64("rps", s.cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = s.cfg.RateLimit.RequestsPerSecond
		limit.Burst = s.cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))
	}

	serveAssets, err := assets(s.cfg.App.AssetsDir, s.logger)
	if err != nil {
		return nil, fmt.Errorf("assets handler: %w", err)
	}

	traced := tracing.HTTPMiddleware(s.tracer)
	router.GET("/ws", traced, s.hub.HandleConnection)
	router.GET("/dist/*path", traced, serveAssets)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router, nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.cfg.App.Version,
		"worker":  s.supervisor.Ready(),
		"windows": len(s.registry.List()),
		"metrics": s.metrics.Snapshot(),
	})
}

// Base is the origin pages are served from.
func (s *Server) Base() string { return s.base }

// Handler exposes the HTTP routes.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves windows, starts the worker, walks the first-run screens and
// blocks until the last window closes or ctx is done. Startup failures are
// returned.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting window ingress", zap.String("addr", s.listener.Addr().String()))
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer s.stopServing()
		if err := s.start(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case <-s.quit:
			s.logger.Info("All windows closed, quitting")
		case <-ctx.Done():
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) start(ctx context.Context) error {
	relayURL, err := windows.PageURL(s.base, PageBroadcast, nil)
	if err != nil {
		return err
	}
	relay, err := s.hub.Open(ctx, windows.Options{
		Title:      broadcast.RelayTitle,
		URL:        relayURL,
		Background: true,
		Hidden:     true,
	})
	if err != nil {
		return err
	}
	s.registry.Register(relay, true)

	s.logger.Debug("Initializing http proxy")
	if err := s.supervisor.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize proxy: %w", err)
	}

	if _, err := s.gate.Run(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) stopServing() {
	// sockets are hijacked and not tracked by Shutdown
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
}

// Close gracefully shuts down the controller
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		if s.hub != nil {
			s.hub.Close()
		}
		if s.supervisor != nil {
			if err := s.supervisor.Close(); err != nil {
				s.logger.Error("Failed to stop worker", zap.Error(err))
				errs = append(errs, fmt.Errorf("stop worker: %w", err))
			}
		}
		if s.bus != nil {
			s.bus.Close()
		}
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.tracer.Close()

		// Sync logger before exit
		_ = s.logger.Sync()
	})
	return errors.Join(errs...)
}

func baseURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
