package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/patientflow/patientflow/internal/config"
	"github.com/patientflow/patientflow/internal/domain/insight"
	"github.com/patientflow/patientflow/internal/domain/notification"
	"github.com/patientflow/patientflow/internal/domain/prediction"
	"github.com/patientflow/patientflow/internal/domain/queue"
	"github.com/patientflow/patientflow/internal/domain/registry"
	"github.com/patientflow/patientflow/internal/platform/auth"
	"github.com/patientflow/patientflow/internal/platform/db"
	"github.com/patientflow/patientflow/internal/platform/feed"
	"github.com/patientflow/patientflow/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flow-server",
		Short: "Clinic patient flow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient flow API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Change feed hub: in-process subscriptions plus websocket clients.
	hub := feed.NewHub(logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthJWTSecret),
		}))
	}

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// -- Registry domain --
	patientRepo := registry.NewPatientRepoPG(pool)
	doctorRepo := registry.NewDoctorRepoPG(pool)
	registrySvc := registry.NewService(patientRepo, doctorRepo)
	registryHandler := registry.NewHandler(registrySvc)
	registryHandler.RegisterRoutes(apiV1)

	// -- Prediction domain --
	historyRepo := prediction.NewHistoryRepoPG(pool)
	predictionSvc := prediction.NewService(historyRepo, cfg.DefaultServiceMinutes)
	predictionHandler := prediction.NewHandler(predictionSvc)
	predictionHandler.RegisterRoutes(apiV1)

	// -- Queue domain, with the notification dispatcher as its notifier --
	apptRepo := queue.NewAppointmentRepoPG(pool)
	entryRepo := queue.NewEntryRepoPG(pool)
	txRunner := queue.NewTxRunner(pool)

	notifRepo := notification.NewRepoPG(pool)
	dispatcher := notification.NewDispatcher(
		notifRepo, entryRepo, apptRepo, predictionSvc, hub,
		cfg.NearTurnAhead, cfg.NearTurnMinutes, logger)
	notifHandler := notification.NewHandler(dispatcher)
	notifHandler.RegisterRoutes(apiV1)

	queueSvc := queue.NewService(apptRepo, entryRepo, txRunner, registrySvc, registrySvc, hub, dispatcher, logger)
	queueHandler := queue.NewHandler(queueSvc)
	queueHandler.RegisterRoutes(apiV1)

	// -- Insight domain --
	insightClient := insight.NewClient(cfg.InsightURL, time.Duration(cfg.InsightTimeoutSecs)*time.Second, logger)
	insightSvc := insight.NewService(insight.NewMetricsRepoPG(pool), insightClient)
	insightHandler := insight.NewHandler(insightSvc)
	insightHandler.RegisterRoutes(apiV1)

	// Websocket feed. Auth middleware runs on the group; browsers pass the
	// token via query string when headers are unavailable.
	wsGroup := e.Group("/ws")
	feedHandler := feed.NewHandler(hub)
	feedHandler.RegisterRoutes(wsGroup)

	// Start server with graceful shutdown.
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
