package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pgstay/internal/app"
	"pgstay/internal/cache"
	"pgstay/internal/config"
	"pgstay/internal/database"
	"pgstay/internal/modules/webhook"
	"pgstay/internal/pkg/mq"
	"pgstay/internal/pkg/obs"
)

func main() {
	log.Println("pgstay api starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	shutdownTracer, err := obs.InitTracer(ctx, "pgstay-api", cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		log.Fatalf("tracer init failed: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	deps := app.Deps{Config: cfg, DB: db, Loggerf: log.Printf}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		deps.PropertyCache = cache.NewRedisCache(rc, cfg.PropertyCacheTTL)
		log.Println("property cache: redis")
	}

	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		deps.Publisher = publisher
		log.Printf("notifications: amqp exchange=%s", cfg.AMQPExchange)
	}

	a := app.New(deps)

	var wg sync.WaitGroup
	workerCtx, workerCancel := context.WithCancel(ctx)
	worker := webhook.NewWorker(a.Webhooks, cfg.WebhookReplayInterval, cfg.WebhookReplayBatch, log.Printf)
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(a.Router, "pgstay-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	workerCancel()
	wg.Wait()

	a.Hub.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("amqp close: %v", err)
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
	log.Println("pgstay api stopped")
}
