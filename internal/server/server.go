package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/teamboard/apiserver/config"
	"github.com/teamboard/apiserver/internal/auth"
	"github.com/teamboard/apiserver/internal/db"
	"github.com/teamboard/apiserver/internal/events"
	"github.com/teamboard/apiserver/internal/handlers"
	"github.com/teamboard/apiserver/internal/metrics"
	httpmw "github.com/teamboard/apiserver/internal/middleware"
	"github.com/teamboard/apiserver/internal/mq"
	"github.com/teamboard/apiserver/internal/services"
	"github.com/teamboard/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	auth    *services.AuthService
	db      *sql.DB
	mongo   *mongo.Client
	broker  *mq.MQ
	limiter *httpmw.RateLimiter
}

// RouterDeps are the collaborators mounted by NewRouter.
type RouterDeps struct {
	Auth     handlers.Authenticator
	Profiles handlers.ProfileReader
	Tokens   handlers.TokenParser
	Limiter  *httpmw.RateLimiter
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the chi router with the standard middleware chain.
func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		httpmw.NewLoggingMiddleware(logger),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware)
	}

	var limit func(http.Handler) http.Handler
	if deps.Limiter != nil {
		limit = deps.Limiter.Middleware
	}

	router.Get("/healthz", handlers.Healthz)
	if deps.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	router.Route("/api/v1/users", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Auth, deps.Profiles, deps.Tokens, limit, logger)
	})

	return router
}

// New constructs a Server from cfg, opening the configured store and broker.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{logger: logger}

	repo, err := s.openUserRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg)
	if err != nil {
		s.closeResources(ctx)
		return nil, err
	}
	s.broker = broker

	var publisher events.Publisher = events.NopPublisher{}
	if broker != nil {
		publisher = events.NewBrokerPublisher(broker)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	issuer := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	s.auth = services.NewAuthService(repo, hasher, issuer,
		services.WithEvents(publisher),
		services.WithMetrics(collector),
		services.WithLogger(logger),
	)
	userService := services.NewUserService(repo)

	limiterCfg := httpmw.DefaultRateLimiterConfig()
	if cfg.RateLimit.PerMinute > 0 {
		limiterCfg.Rate = rate.Limit(float64(cfg.RateLimit.PerMinute) / 60.0)
	}
	if cfg.RateLimit.Burst > 0 {
		limiterCfg.Burst = cfg.RateLimit.Burst
	}
	limiterCfg.OnLimited = collector.RecordRateLimited
	limiterCfg.Logger = logger
	s.limiter = httpmw.NewRateLimiter(limiterCfg)

	s.router = NewRouter(RouterDeps{
		Auth:     s.auth,
		Profiles: userService,
		Tokens:   issuer,
		Limiter:  s.limiter,
		Metrics:  collector,
		Gatherer: registry,
		Logger:   logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) openUserRepository(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.db = dbConn
		return store.NewUserRepository(dbConn), nil
	default:
		client, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s.mongo = client

		repo := store.NewMongoUserRepository(client.Database(cfg.Mongo.Database).Collection(store.UsersCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			s.closeResources(ctx)
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		return repo, nil
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and pending user events, then releases
// the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.auth != nil {
		s.auth.Wait()
	}
	s.closeResources(ctx)
	return err
}

func (s *Server) closeResources(ctx context.Context) {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("close broker", slog.Any("error", err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("disconnect mongo", slog.Any("error", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close postgres", slog.Any("error", err))
		}
	}
}
