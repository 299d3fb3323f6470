package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/nurox-dashboard/internal/config"
	"github.com/iliyamo/nurox-dashboard/internal/database"
	"github.com/iliyamo/nurox-dashboard/internal/handler"
	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/notify"
	"github.com/iliyamo/nurox-dashboard/internal/obs"
	"github.com/iliyamo/nurox-dashboard/internal/queue"
	"github.com/iliyamo/nurox-dashboard/internal/repository"
	"github.com/iliyamo/nurox-dashboard/internal/router"
	"github.com/iliyamo/nurox-dashboard/internal/seed"
	"github.com/iliyamo/nurox-dashboard/internal/service"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional

	rootCmd := &cobra.Command{
		Use:           "nurox-server",
		Short:         "Nurox dashboard auth API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Info().Int("statements", len(database.Statements())).Msg("schema applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo organizations and accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			fx, err := loadFixture(file)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := seed.Apply(cmd.Context(), repository.NewAccountRepo(db), fx, cfg.BcryptCost, log)
			if err != nil {
				return err
			}
			log.Info().
				Int("organizations", res.Organizations).
				Int("created", res.Created).
				Int("skipped", res.Skipped).
				Msg("seed complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Fixture file (defaults to the built-in demo set)")
	return cmd
}

func loadFixture(path string) (seed.Fixture, error) {
	if path == "" {
		return seed.Demo()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return seed.Fixture{}, err
	}
	return seed.Parse(b)
}

// setup loads configuration and builds the process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var log zerolog.Logger
	if cfg.Dev() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	log = log.Level(level).With().Timestamp().Str("service", "nurox-dashboard").Logger()
	return cfg, log, nil
}

func openDB(ctx context.Context, cfg config.Config, migrate bool) (*sql.DB, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func runServer(migrate bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := token.NewManager(token.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return err
	}

	metrics := obs.New()
	hub := notify.NewHub()
	hub.OnChange = metrics.ClientConnected

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using in-process rate limiting")
	} else {
		defer rdb.Close()
	}

	var auditor service.Auditor = service.NopAuditor{}
	audit := &handler.AuditHandler{Log: log}
	if cfg.AuditEnabled {
		auditor = service.NewAuditPublisher(cfg.RabbitMQURL, log)
		if rdb != nil {
			events := repository.NewAuditLog(rdb, int64(cfg.AuditLogSize))
			audit.Events = events
			go func() {
				if err := queue.StartAuthConsumer(ctx, cfg.RabbitMQURL, events, log); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("auth consumer stopped")
				}
			}()
		}
	}

	accounts := repository.NewAccountRepo(db)
	auth := &handler.AuthHandler{
		Validator: service.NewValidator(accounts),
		Accounts:  accounts,
		Tokens:    tokens,
		Hub:       hub,
		Audit:     auditor,
		Metrics:   metrics,
		Log:       log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))
	e.Use(middleware.Recovery(log))
	e.Use(metrics.Instrument())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
			AllowCredentials: true,
		}))
	}

	api := e.Group("/api")
	router.RegisterRoutes(e, metrics)
	router.RegisterAuth(api, auth, tokens, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
	router.RegisterDashboard(e, api, tokens, audit)
	router.RegisterNotifications(e, handler.NewNotificationHandler(hub, cfg.CORSOrigins, log), tokens)

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
