package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maternacare/cds/internal/config"
	"github.com/maternacare/cds/internal/domain/decision"
	"github.com/maternacare/cds/internal/domain/engine"
	"github.com/maternacare/cds/internal/domain/risk"
	"github.com/maternacare/cds/internal/domain/rules"
	"github.com/maternacare/cds/internal/platform/auth"
	"github.com/maternacare/cds/internal/platform/db"
	"github.com/maternacare/cds/internal/platform/middleware"
	"github.com/maternacare/cds/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cds-server",
		Short: "Maternal care clinical decision support server",
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
		Short: "Start the decision support API server",
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

	// Telemetry
	tel := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "cds-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})

	// Rule store: Postgres when configured, in-memory otherwise.
	ctx := context.Background()
	var ruleRepo rules.Repository
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		ruleRepo = rules.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		ruleRepo = rules.NewRepoMem()
		logger.Warn().Msg("no DATABASE_URL set; rule store is in-memory and volatile")
	}

	// Domain services
	ruleCache := decision.NewRuleCache(cfg.RuleCacheTTL())
	ruleSvc := rules.NewService(ruleRepo, ruleCache, tel, logger)
	dangerSigns := engine.NewDangerSignEvaluator(engine.DefaultDangerSignCatalog())
	decisionSvc := decision.NewService(ruleSvc, ruleCache, dangerSigns, tel, logger)
	riskSvc := risk.NewService(risk.NewPrEPScorer(risk.DefaultPrEPFactorTable()), logger)

	if cfg.RuleSeedFile != "" {
		if err := seedRules(ctx, ruleSvc, cfg.RuleSeedFile, logger); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.RuleSeedFile).Msg("failed to seed rules")
		}
	}
	if err := decisionSvc.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial cache warm failed")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tel.TracingMiddleware())
	e.Use(tel.MetricsMiddleware())
	e.Use(echomw.Gzip())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", tel.PrometheusHandler())

	// Domain routes
	api := e.Group("/api")
	rules.NewHandler(ruleSvc).RegisterRoutes(api)
	risk.NewHandler(riskSvc).RegisterRoutes(api)
	decision.NewHandler(decisionSvc).RegisterRoutes(api)

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("cds-server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped cleanly")
	return nil
}

// seedRules imports a CSV rule file on startup. Intended for development runs
// against the in-memory store.
func seedRules(ctx context.Context, ruleSvc *rules.Service, path string, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := ruleSvc.ImportCSV(ctx, f)
	if err != nil {
		return err
	}
	logger.Info().
		Str("file", path).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Msg("seeded rules from file")
	return nil
}
