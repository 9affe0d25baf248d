package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-notify-nosql/internal/application/delivery"
	"github.com/go-notify-nosql/internal/application/device"
	"github.com/go-notify-nosql/internal/application/notification"
	"github.com/go-notify-nosql/internal/application/session"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/infrastructure/dynamo"
	"github.com/go-notify-nosql/internal/infrastructure/fcm"
	jwtinfra "github.com/go-notify-nosql/internal/infrastructure/jwt"
	s3infra "github.com/go-notify-nosql/internal/infrastructure/s3"
	"github.com/go-notify-nosql/internal/infrastructure/sns"
	transporthttp "github.com/go-notify-nosql/internal/transport/http"
	"github.com/go-notify-nosql/internal/transport/ws"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamo client: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	tokenRepo := dynamo.NewDeviceTokenRepo(dynamoClient, cfg.DynamoTables.DeviceTokens)

	sessions := session.NewRegistry()
	tokens := device.NewRegistry(tokenRepo)

	// Push is optional; the realtime channel works without it.
	var push delivery.PushProvider
	switch cfg.PushProvider {
	case "sns":
		if p, err := sns.NewPusher(ctx, cfg); err == nil {
			push = p
		} else {
			log.Printf("WARN: SNS push not available: %v", err)
		}
	case "fcm":
		if p, err := fcm.NewPusher(ctx, cfg); err == nil {
			push = p
		} else {
			log.Printf("WARN: FCM push not available: %v", err)
		}
	case "":
		log.Println("Push delivery disabled")
	default:
		log.Printf("WARN: unknown PUSH_PROVIDER %q, push delivery disabled", cfg.PushProvider)
	}

	var media *s3infra.MediaSigner
	if s3Client, err := s3infra.NewClient(ctx, cfg); err == nil {
		media = s3infra.NewMediaSigner(s3Client, cfg.S3BucketName, cfg.MediaURLExpiry)
	} else {
		log.Printf("WARN: media signing not available: %v", err)
	}

	hub := ws.NewHub(sessions, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.WS.PingInterval,
		PongTimeout:    cfg.WS.PongTimeout,
	})

	dispatcher := delivery.NewDispatcher(sessions, hub, tokens, push, cfg.Delivery.Timeout)
	pool := delivery.NewPool(dispatcher, cfg.Delivery.Workers, cfg.Delivery.QueueSize)
	pool.Start(ctx)

	deps := notification.ServiceDeps{
		Repo:            notificationRepo,
		Dispatcher:      pool,
		DuplicateWindow: cfg.Notify.DuplicateWindow,
		BundleWindow:    cfg.Notify.BundleWindow,
		PageSize:        cfg.Notify.PageSize,
		MaxPageSize:     cfg.Notify.MaxPageSize,
	}
	if media != nil {
		deps.MediaSigner = media
	}
	notifSvc := notification.NewService(deps)

	// JWT provider is optional; without keys every authenticated route answers 401.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Notifications: notifSvc,
		Tokens:        tokens,
		Sessions:      sessions,
		Hub:           hub,
		JWTProvider:   jwtProvider,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, push=%q)", cfg.AppPort, cfg.AppEnv, cfg.PushProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("delivery drain incomplete: %v", err)
	}
	hub.Close()
	stop()
	log.Println("Server stopped")
}
