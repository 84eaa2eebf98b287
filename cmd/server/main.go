package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/config"
	"github.com/sujalbistaa/setor7/internal/db"
	routes "github.com/sujalbistaa/setor7/internal/http"
	"github.com/sujalbistaa/setor7/internal/logging"
	"github.com/sujalbistaa/setor7/internal/media"
	"github.com/sujalbistaa/setor7/internal/service"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "setor7",
	Short:         "Community paranormal story board backend",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// app is what every command needs. The caller must defer a.Close().
type app struct {
	cfg   *config.Config
	db    *gorm.DB
	store media.Store
	svc   *service.Services
}

func newApp(ctx context.Context, serve bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if serve {
		err = cfg.ValidateServe()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, err
	}

	database, err := db.Init(cfg.DatabaseURL, db.Options{LogLevel: logging.GormLevel(cfg.LogLevel)})
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	store, err := media.NewStoreFromConfig(ctx, cfg.Media)
	if err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("initializing media store: %w", err)
	}

	svc := service.New(database, store, service.Options{
		AuditRetryTimeout:  cfg.AuditRetryTimeout,
		AuditRetryInterval: cfg.AuditRetryInterval,
	})
	return &app{cfg: cfg, db: database, store: store, svc: svc}, nil
}

func (a *app) Close() {
	if err := db.Close(a.db); err != nil {
		slog.Warn("closing database", "err", err)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		slog.Info("running database migrations")
		if err := db.Migrate(ctx, a.db); err != nil {
			return err
		}
		if err := a.store.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("media store not usable: %w", err)
		}

		if a.cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		routes.SetupRoutes(router, routes.Deps{
			DB:       a.db,
			Services: a.svc,
			Verifier: auth.NewVerifier(a.cfg.JWTSecret, a.cfg.JWTIssuer),
			Config:   a.cfg,
		})

		srv := &http.Server{
			Addr:              ":" + a.cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for OS signals
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		serveErr := make(chan error, 1)
		go func() {
			slog.Info("server listening", "port", a.cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		select {
		case err := <-serveErr:
			return fmt.Errorf("listen: %w", err)
		case <-quit:
		}
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("server exiting")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := db.Migrate(cmd.Context(), a.db); err != nil {
			return err
		}
		fmt.Println("Migrations complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(auditCmd)
}
