package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/offq"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func loadConfig(opts *RootOptions) (*offq.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("OFFQ_CONFIG")
	}
	return offq.LoadConfig(path)
}

func setupLogging(w io.Writer, level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(format, "text") || strings.EqualFold(format, "console") {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// openKV opens the configured key-value store. The returned func releases it.
func openKV(ctx context.Context, cfg *offq.Config) (offq.KV, func(), error) {
	switch cfg.Store {
	case "memory":
		slog.Warn("offqd: using in-memory store, queued actions will not survive restart")
		return offq.NewMemoryKV(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		kv := offq.NewPGKV(pool)
		if err := kv.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return kv, pool.Close, nil
	default:
		kv, err := offq.OpenSQLiteKV(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil
	}
}

func newTokenProvider(cfg *offq.Config) offq.TokenProvider {
	if cfg.TokenRefresh == "" {
		return offq.StaticToken(cfg.Token)
	}
	refresh := offq.BackendRefresher(cfg.BaseURL, cfg.TokenRefresh, &http.Client{Timeout: cfg.RequestTimeout})
	return offq.NewRefreshingToken(cfg.Token, refresh, time.Minute)
}

func serve(ctx context.Context, cfg *offq.Config) error {
	kv, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeKV()

	queue, err := offq.OpenManager(ctx, offq.NewQueueStore(kv, cfg.QueueKey), offq.WithMaxLen(cfg.MaxQueueLen))
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}

	client := offq.NewClient(offq.ClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
		Tokens:  newTokenProvider(cfg),
	})

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("offqd"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer func() { _ = nc.Drain() }()
	}

	var notifier offq.Notifier
	if cfg.PublishEvents && nc != nil {
		notifier = offq.NewEventPublisher(nc, cfg.Source)
	}

	engine := offq.NewEngine(queue, client, notifier)
	monitor := offq.NewMonitor(engine)

	if nc != nil {
		proc := offq.NewConnectivityProcessor(monitor)
		sub, err := proc.Subscribe(ctx, nc, cfg.ConnectivitySubject)
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
		slog.Info("offqd: listening for connectivity events", "subject", sub.Subject)
	}

	var prober *offq.Prober
	if cfg.ProbeInterval > 0 {
		prober = offq.NewProber(client, monitor, cfg.ProbePath, cfg.ProbeInterval)
		prober.Start(ctx)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", offq.MetricsHandler())
	r.Mount("/api/v1/queue", offq.NewHandler(ctx, queue, engine, monitor).Routes())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("offqd: control API listening", "addr", cfg.ListenAddr, "pending", queue.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control API: %w", err)
		}
	}

	slog.Info("offqd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("offqd: shutdown control API", "error", err)
	}
	if prober != nil {
		prober.Wait()
	}
	engine.Wait()
	return nil
}
