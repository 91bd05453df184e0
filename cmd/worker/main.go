package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ignite/outreach-core/internal/app"
	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/worker"
)

func main() {
	log.Println("Starting outreach-core escalation worker...")

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logger.SetLevel(logger.ParseLevel(lvl))
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()
	if a.Redis == nil && a.DB == nil {
		log.Println("WARNING: no redis or database configured; campaign locks are process-local")
	}

	scheduler := worker.NewEscalationScheduler(a.Sequencer, a.States, a.Locks,
		worker.WithInterval(cfg.Scheduler.Interval()))

	// Single pass for cron-style deployments.
	if once, _ := strconv.ParseBool(os.Getenv("ESCALATION_RUN_ONCE")); once {
		report := scheduler.Tick(ctx)
		for _, c := range report.Campaigns {
			switch {
			case c.Err != nil:
				log.Printf("  %s: error: %v", c.CampaignID, c.Err)
			case c.Locked:
				log.Printf("  %s: locked by another worker", c.CampaignID)
			case c.Report != nil:
				log.Printf("  %s: due=%d sent=%d denied=%d failed=%d",
					c.CampaignID, c.Due, c.Report.Sent, c.Report.Denied, c.Report.Failed)
			default:
				log.Printf("  %s: due=%d", c.CampaignID, c.Due)
			}
		}
		log.Printf("Tick complete: %d sent", report.Sent())
		return
	}

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start escalation scheduler: %v", err)
	}
	log.Printf("Escalation scheduler started (every %s, %d campaigns)", cfg.Scheduler.Interval(), len(a.Sequencer.Catalog().IDs()))

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticks, sent := scheduler.Stats()
				log.Printf("Worker heartbeat - ticks=%d sent=%d", ticks, sent)
			}
		}
	}()

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	scheduler.Stop()
	log.Println("Worker stopped")
}
