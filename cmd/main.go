package main

import (
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/push"
	"chat-relay/infrastructure/storage"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred cleanups run.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	monitoring, err := observability.NewMonitoringManager(log)
	if err != nil {
		return fmt.Errorf("process monitoring failed: %w", err)
	}

	// 3. Stores, gateway and services
	clock := runtime.RealClock{}
	store := storage.NewDocumentStore(db, log)
	users := storage.NewUserRepository(store)
	chats := storage.NewChatRepository(store)
	groups := storage.NewGroupRepository(store)
	announcements := storage.NewAnnouncementRepository(store, clock)
	queue := storage.NewNotificationQueue(store, clock)
	likes := storage.NewLikeRepository(store, clock)
	gateway := push.NewLogGateway(log, splitList(config.RevokedPushTokens)...)

	registry := runtime.NewRegistry()
	router := services.NewMessageRouter(log, registry, users, chats, gateway, clock)
	notifier := services.NewGroupNotifier(log, registry, groups, users, gateway, clock)
	broadcaster := services.NewEventBroadcaster(log, announcements, clock, config.HeartbeatInterval, config.RecentPostsLimit)

	// 4. Background workers
	feed := workers.NewChangeFeedListener(log, queue, gateway, clock, runtime.BackoffPolicy{
		Base:        config.BackoffBase,
		Cap:         config.BackoffCap,
		MaxFailures: config.BackoffMaxFailures,
		Cooldown:    config.BackoffCooldown,
	})
	healthServer := server.NewHealthServer(log, fmt.Sprintf("%s:%d", config.Host, config.HealthPort))
	reporter := workers.NewHealthReporter(log, healthServer.Health, feed, monitoring, clock,
		config.HealthInterval, config.ServiceName)

	sup := workers.NewSupervisor(log, clock, config.RestartInterval)
	sup.Add(feed, workers.NewLikeCounter(log, likes), reporter, healthServer)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. HTTP Server Setup
	apiServer := api.NewServer(log,
		api.Options{
			ServiceName:     config.ServiceName,
			AllowedOrigins:  splitList(config.AllowedOrigins),
			SendBufferSize:  config.ConnectionBufferSize,
			DeliveryTimeout: config.DeliveryTimeout,
			MaxFrameBytes:   config.MaxFrameBytes,
		},
		registry, router, notifier, broadcaster,
		announcements, queue, likes, feed, monitoring, clock,
	)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the process context, not only when the client leaves.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		sup.Stop()
		<-supervised
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supervised
	log.Info("Program stopped cleanly")
	return nil
}
