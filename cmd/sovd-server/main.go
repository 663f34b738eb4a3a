// Command sovd-server runs the diagnostic command back-end: the REST API,
// the response stream endpoint, and the execution worker pool, all backed
// by PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/api"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/auth"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/config"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/connector"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/database"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/queue"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := database.Connect(cfg.DSN())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The listener dispatches into the hub; the hub drives LISTEN/UNLISTEN
	// through the listener.
	var hub *events.Hub
	listener := events.NewListener(cfg.DSN(), func(channel string, payload []byte) {
		hub.Broadcast(ctx, channel, payload)
	})
	hub = events.NewHub(listener)
	if err := listener.Start(ctx); err != nil {
		return err
	}
	defer listener.Stop(context.Background())

	auditSvc := services.NewAuditService(client.Gorm)
	vehicleSvc := services.NewVehicleService(client.Gorm)
	commandSvc := services.NewCommandService(client.Gorm, auditSvc)
	responseSvc := services.NewResponseService(client.Gorm)

	publisher := events.NewPublisher(client.SQL)

	pool := queue.NewPool(queue.Config{
		Workers:            cfg.Workers,
		CommandTimeout:     cfg.CommandTimeout,
		PollInterval:       cfg.PollInterval,
		OrphanScanInterval: cfg.OrphanScanInterval,
		OrphanAge:          cfg.OrphanAge,
	}, commandSvc, responseSvc, vehicleSvc, publisher, auditSvc, &connector.Mock{})
	pool.Start(ctx)
	defer pool.Stop()

	tokens := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	streamer := events.NewStreamGateway(hub, commandSvc, responseSvc, cfg.WSWriteTimeout)

	server := api.NewServer(api.ServerConfig{
		Addr:          cfg.Addr(),
		PublicBaseURL: cfg.PublicBaseURL,
		JWTSecret:     []byte(cfg.JWTSecret),
		RateLimit: api.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
	}, api.Deps{
		Commands:  commandSvc,
		Vehicles:  vehicleSvc,
		Responses: responseSvc,
		Waker:     pool,
		Verifier:  tokens,
		Streamer:  streamer,
		DB:        client,
		Pool:      pool,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogging() {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
