package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"challengesAPI/handlers"
	"challengesAPI/internal/challenges"
	"challengesAPI/internal/config"
	"challengesAPI/internal/logger"
	"challengesAPI/middleware"
	"challengesAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func connectDB(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := connectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing database connection pool")
		dbPool.Close()
	}()
	log.Info("Connected to database")

	registry, err := challenges.LoadRegistry(cfg.ChallengesFile)
	if err != nil {
		return err
	}
	if err := services.EnsureSchema(ctx, dbPool); err != nil {
		return err
	}
	if err := services.SyncDefinitions(ctx, dbPool, registry.All()); err != nil {
		return err
	}

	listeners, err := challenges.BuildListeners(registry, log)
	if err != nil {
		return err
	}

	scheduler, err := challenges.NewScheduler(challenges.Window{
		Location:      cfg.Trending.Location,
		Weekday:       cfg.Trending.Weekday,
		Start:         cfg.Trending.WindowStart,
		End:           cfg.Trending.WindowEnd,
		AnchorWeekday: cfg.Trending.AnchorWeekday,
	})
	if err != nil {
		return err
	}

	rankingService := services.NewRankingService(dbPool, log)
	enqueuer := challenges.NewEnqueuer(scheduler, rankingService,
		services.TrendingTargets(cfg.Trending.Versions), cfg.Trending.TopN, log)
	challengeService := services.NewChallengeService(dbPool, listeners, log)
	trendingService := services.NewTrendingService(dbPool, challengeService, enqueuer, log)

	challenges.InitPrometheus(prometheus.DefaultRegisterer)
	middleware.InitPrometheus(prometheus.DefaultRegisterer)

	challengeHandler := handlers.NewChallengeHandler(challengeService, log)
	trendingHandler := handlers.NewTrendingHandler(trendingService, log)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go rateLimiter.Cleanup(ctx, 3*time.Minute)

	r := mux.NewRouter()
	r.Use(middleware.MonitorMiddleware)
	r.Use(rateLimiter.Middleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.TriggerAuthMiddleware(cfg.TriggerSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "challenges-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/events/listen", challengeHandler.RecordListens).Methods("POST")
	api.HandleFunc("/users/{userID}/challenges", challengeHandler.GetUserChallenges).Methods("GET")
	api.HandleFunc("/trending/eligibility", trendingHandler.Eligibility).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.TriggerAuthMiddleware(cfg.TriggerSecret))
	protected.HandleFunc("/trending/run", trendingHandler.Run).Methods("POST")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gorillaHandlers.RecoveryHandler(gorillaHandlers.PrintRecoveryStack(true))(corsHandler(r)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.Trending.JobInterval > 0 {
		go trendingService.Start(ctx, cfg.Trending.JobInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("error", err.Error()))
	}

	log.Info("Server shutdown complete")
	return nil
}
