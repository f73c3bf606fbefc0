package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/kafka"
	"github.com/ramiqadoumi/planflow/internal/orchestrator"
	"github.com/ramiqadoumi/planflow/internal/planner"
	"github.com/ramiqadoumi/planflow/internal/postgres"
	redisstore "github.com/ramiqadoumi/planflow/internal/redis"
	"github.com/ramiqadoumi/planflow/internal/store"
	"github.com/ramiqadoumi/planflow/pkg/retry"
	"github.com/ramiqadoumi/planflow/pkg/telemetry"
	"github.com/ramiqadoumi/planflow/services/api-gateway/config"
	"github.com/ramiqadoumi/planflow/services/api-gateway/handler"
	"github.com/ramiqadoumi/planflow/services/api-gateway/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST and gRPC servers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("grpc-port", "9090", "gRPC server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("store", "postgres", "project state backend: postgres | redis")
	serveCmd.Flags().String("planner-url", "", "decomposition endpoint; empty uses the built-in template")
	serveCmd.Flags().Duration("planner-timeout", 60*time.Second, "decomposition request timeout")
	serveCmd.Flags().Int("rate-limit", 30, "project creations per client per window (0 = unlimited)")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().Int64("max-body-bytes", 1<<20, "maximum request body size")
	serveCmd.Flags().String("cors-origins", "*", "comma-separated origins allowed by CORS (* = any, empty disables)")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("grpc_port", serveCmd.Flags(), "grpc-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("store", serveCmd.Flags(), "store")
	bindFlag("planner_url", serveCmd.Flags(), "planner-url")
	bindFlag("planner_timeout", serveCmd.Flags(), "planner-timeout")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_window", serveCmd.Flags(), "rate-window")
	bindFlag("max_body_bytes", serveCmd.Flags(), "max-body-bytes")
	bindFlag("cors_origins", serveCmd.Flags(), "cors-origins")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat, "api-gateway")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api-gateway", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	// Every gateway instance reads the whole event stream, so each gets its
	// own consumer group.
	eventsConsumer := kafka.NewConsumer(brokers, kafka.TopicEvents,
		"api-gateway-live-"+uuid.New().String()[:8], logger, kafka.FromLatest(), kafka.WithMaxWait(100*time.Millisecond))
	defer func() { _ = eventsConsumer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var pool *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err = postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
	}

	var projects store.Store
	if cfg.Store == "redis" {
		projects = redisstore.NewProjectStore(redisClient, 0)
	} else {
		projects = postgres.NewProjectStore(pool)
	}
	projects = store.WithRetry(projects, retry.Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}, logger)
	listing, ok := projects.(store.ProjectStore)
	if !ok {
		return errors.New("project store cannot list projects")
	}

	var decomposer planner.Planner = planner.NewTemplatePlanner()
	if cfg.PlannerURL != "" {
		decomposer = planner.NewHTTPPlanner(cfg.PlannerURL, &http.Client{Timeout: cfg.PlannerTimeout}, logger)
	}

	// The gateway only seeds projects; runners own execution.
	seeder := orchestrator.New(capability.NewRegistry(), listing, orchestrator.WithLogger(logger))
	svc := handler.NewService(listing, seeder, decomposer, kafka.NewCommandPublisher(producer), logger)

	ready := func(ctx context.Context) error {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		return nil
	}

	hub := handler.NewHub(logger)
	restOpts := []handler.RESTOption{handler.WithHub(hub), handler.WithReadiness(ready)}
	if pool != nil {
		restOpts = append(restOpts,
			handler.WithAgents(postgres.NewAgentRepository(pool)),
			handler.WithExecutions(postgres.NewExecutionRepository(pool)),
		)
	}
	if cfg.RateLimit > 0 {
		limiter := redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)
		restOpts = append(restOpts, handler.WithCreateMiddleware(middleware.RateLimit(limiter, "create", logger)))
	}
	restHandler := handler.NewREST(svc, logger, restOpts...)
	grpcHandler := handler.NewGRPC(svc, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	restHandler.Mount(r)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── gRPC server ───────────────────────────────────────────────────────────
	grpcSrv := grpc.NewServer()
	grpcSrv.RegisterService(&handler.ProjectServiceDesc, grpcHandler)
	reflection.Register(grpcSrv)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, ready)

	go func() {
		if err := hub.Run(runCtx, eventsConsumer); err != nil {
			logger.Error("live update consumer stopped", slog.String("error", err.Error()))
		}
	}()

	go func() {
		logger.Info("api-gateway HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	go func() {
		logger.Info("api-gateway gRPC starting", slog.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	grpcSrv.GracefulStop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
