package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/matchserver"
)

const appName = "go_match"

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Semantic similarity and candidate-matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), backfillCmd(), requeueStaleCmd(), versionCmd())
	return root
}

// withApp loads configuration, builds the app and runs fn with a context
// canceled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", slog.Any("error", err))
		return err
	}
	return nil
}

func serveCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (and the queue worker unless --no-worker)",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if !noWorker {
					w, err := a.newWorker(ctx)
					if err != nil {
						return err
					}
					go func() {
						if err := w.Run(ctx); err != nil {
							a.logger.Error("worker stopped", slog.Any("error", err))
						}
					}()
				}

				port := env.Str("MCP_PORT", "8892")
				a.logger.Info("starting "+appName, slog.String("port", port), slog.String("version", version))

				server := mcp.NewServer(&mcp.Implementation{Name: appName, Version: version}, nil)
				matchserver.RegisterTools(server, a.svc, matchserver.Options{StaleAfter: a.cfg.QueueStaleAfter})
				a.logger.Info("tools registered", slog.Int("count", matchserver.ToolCount))

				return mcpserver.Run(server, mcpserver.Config{
					Name:         appName,
					Version:      version,
					Port:         port,
					WriteTimeout: 120 * time.Second,
					Metrics:      a.metrics.Format,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not start queue workers in this process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run queue workers until interrupted",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				w, err := a.newWorker(ctx)
				if err != nil {
					return err
				}
				return w.Run(ctx)
			})
		},
	}
}

func backfillCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Queue embedding generation for entities without a completed embedding",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var kinds []engine.EntityKind
				if kind != "" {
					k, err := engine.ParseEntityKind(kind)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
				n, err := a.svc.Backfill(ctx, kinds...)
				if err != nil {
					return err
				}
				fmt.Printf("enqueued %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "job or candidate (default both)")
	return cmd
}

func requeueStaleCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "requeue-stale",
		Short: "Fail items stuck in processing and queue fresh ones",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if olderThan <= 0 {
					olderThan = a.cfg.QueueStaleAfter
				}
				items, err := a.svc.RequeueStale(ctx, olderThan)
				if err != nil {
					return err
				}
				for _, it := range items {
					fmt.Printf("%s\t%s\t%s\n", it.ID, it.Ref(), it.TaskType)
				}
				fmt.Printf("requeued %d\n", len(items))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "processing age threshold (default QUEUE_STALE_AFTER)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(appName, version)
		},
	}
}
