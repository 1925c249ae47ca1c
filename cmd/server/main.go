package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tess1o/geopulse-sub001/internal/api"
	"github.com/tess1o/geopulse-sub001/internal/config"
	"github.com/tess1o/geopulse-sub001/internal/database"
	"github.com/tess1o/geopulse-sub001/internal/service"
)

var rootCmd = &cobra.Command{
	Use:          "timeline",
	Short:        "Timeline cache and regeneration service",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd(), migrateCmd(), regenerateCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// openDB loads config, opens the database and applies pending migrations
func openDB(ctx context.Context) (*config.Config, *sql.DB, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.NewMigrationManager(db).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, db, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background regeneration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, db, logger, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := service.NewEngine(db, cfg.Queue, nil, logger)
			srv := &http.Server{
				Addr:              cfg.Port,
				Handler:           api.SetupRouter(cfg, engine.Timeline, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return engine.RunBackground(ctx) })
			g.Go(func() error {
				logger.Info("server starting", "addr", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, logger, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("migrations applied")
			return nil
		},
	}
}

func regenerateCmd() *cobra.Command {
	var userID, start, end string
	var queue bool

	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild a user's cached timeline for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := time.Parse("2006-01-02", end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			to = to.AddDate(0, 0, 1)

			ctx := cmd.Context()
			cfg, db, logger, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := service.NewEngine(db, cfg.Queue, nil, logger)
			if queue {
				task, err := engine.Timeline.EnqueueLowPriority(ctx, userID, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued task %d\n", task.ID)
				return nil
			}

			snapshot, err := engine.Timeline.ForceRegenerate(ctx, userID, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d stays, %d trips, %d gaps\n",
				len(snapshot.Stays), len(snapshot.Trips), len(snapshot.DataGaps))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day (inclusive), YYYY-MM-DD")
	cmd.Flags().BoolVar(&queue, "queue", false, "queue a low priority task instead of regenerating now")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
