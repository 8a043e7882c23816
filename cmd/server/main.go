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

	"go-groupchat/internal/auth"
	"go-groupchat/internal/config"
	"go-groupchat/internal/httpserver"
	"go-groupchat/internal/redis"
	"go-groupchat/internal/store"
	"go-groupchat/internal/telemetry"
	"go-groupchat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("Failed to flush telemetry", "error", err)
		}
	}()

	verifier, closeVerifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	defer closeVerifier()

	stores, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	messages := stores.messages
	if cfg.MessageKey != "" {
		encrypted, err := store.NewEncrypted(messages, cfg.MessageKey)
		if err != nil {
			return fmt.Errorf("init message encryption: %w", err)
		}
		messages = encrypted
		slog.Info("Message encryption at rest enabled")
	}

	hub := ws.NewHub(ws.Options{
		Verifier:         verifier,
		Members:          stores.members,
		Messages:         messages,
		OperationTimeout: cfg.OperationTimeout,
		AllowedOrigins:   cfg.AllowedOrigins,
		ReadLimit:        cfg.ReadLimit,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	if stores.redis != nil {
		go redis.SubscribeToMembershipChanges(hubCtx, stores.redis, hub)
	}

	server := httpserver.CreateServer(cfg.Addr(), httpserver.SetupRouter(cfg.GinMode, hub))

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("WebSocket server starting", "addr", server.Addr, "backend", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	// Hijacked websocket connections are not tracked by the HTTP server, so
	// the hub closes them itself.
	stopHub()
	return httpserver.Shutdown(server, cfg.ShutdownTimeout)
}

func newVerifier(cfg *config.Config) (auth.Verifier, func(), error) {
	if cfg.AuthIssuerURL != "" {
		v, err := auth.NewJWKSVerifier(cfg.AuthIssuerURL, cfg.JWKSRefresh)
		if err != nil {
			return nil, nil, fmt.Errorf("init JWKS: %w", err)
		}
		return v, v.Close, nil
	}

	slog.Info("Using shared-secret token verification")
	return auth.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer), func() {}, nil
}

type backend struct {
	members  store.MembershipOracle
	messages store.MessageStore
	redis    *redis.Client
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return &backend{members: pg, messages: pg, close: pg.Close}, nil

	case config.BackendRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			members:  client,
			messages: client,
			redis:    client,
			close: func() {
				if err := client.Close(); err != nil {
					slog.Warn("Failed to close Redis client", "error", err)
				}
			},
		}, nil

	default:
		slog.Warn("Using in-memory store, data is lost on restart")
		mem := store.NewMemory()
		return &backend{members: mem, messages: mem, close: func() {}}, nil
	}
}
