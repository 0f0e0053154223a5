package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"pgstay/internal/config"
	"pgstay/internal/database"
	"pgstay/internal/modules/inventory"
	"pgstay/internal/modules/payment"
	"pgstay/internal/modules/webhook"
	"pgstay/internal/repository"
)

// reconcile replays deferred webhook events once and exits. Run from cron when the API's
// background worker is disabled or lagging.
func main() {
	limit := flag.Int("limit", 500, "max deferred events to replay")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	svc := webhook.NewService(
		payment.NewVerifier(cfg.PaymentKeySecret, cfg.PaymentWebhookSecret),
		repository.NewWebhookEventRepository(db),
		repository.NewBookingRepository(db),
		inventory.NewLedger(db, log.Printf),
		log.Printf,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stats, err := svc.ReplayDeferred(ctx, *limit)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	log.Printf("reconcile completed: scanned=%d applied=%d still_deferred=%d failed=%d",
		stats.Scanned, stats.Applied, stats.StillDeferred, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
