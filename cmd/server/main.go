package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/internal/config"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/logging"
	"github.com/greasedesk/greasedesk/internal/mailer"
	"github.com/greasedesk/greasedesk/internal/metrics"
)

const serviceName = "greasedesk"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "GreaseDesk garage management API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd())
	return root
}

// runtime holds what every subcommand needs.
type runtime struct {
	cfg  *config.Config
	log  *zap.Logger
	conn *gorm.DB
}

func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	conn, err := db.Open(ctx, db.Options{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBMaxConnLifetime,
		Logger:          logging.Gorm(log, cfg.LogLevel),
		Attempts:        5,
		Backoff:         2 * time.Second,
	}, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, conn: conn}, nil
}

func (rt *runtime) close() {
	if err := db.Close(rt.conn); err != nil {
		rt.log.Warn("close database", zap.Error(err))
	}
	_ = rt.log.Sync()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			if err := db.Migrate(rt.conn); err != nil {
				return err
			}
			rt.log.Info("migrations completed")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo tenant and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			seedCfg, err := db.LoadSeedConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(rt.conn); err != nil {
				return err
			}
			res, err := db.Seed(cmd.Context(), rt.conn, seedCfg, time.Now())
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			rt.log.Info("seed completed",
				zap.String("group_id", res.GroupID),
				zap.String("site_id", res.SiteID),
				zap.String("user_id", res.UserID))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			if migrate {
				if err := db.Migrate(rt.conn); err != nil {
					return err
				}
				rt.log.Info("migrations completed")
			}
			return serve(rt)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run migrations before serving")
	return cmd
}

func serve(rt *runtime) error {
	cfg := rt.cfg
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := NewApp(Deps{
		DB:      rt.conn,
		Config:  cfg,
		Log:     rt.log,
		Mailer:  mailer.New(cfg.ResendAPIKey, cfg.EmailFrom, rt.log),
		Metrics: metrics.New(serviceName, reg),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-quit:
		rt.log.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	rt.log.Info("server stopped gracefully")
	return nil
}
