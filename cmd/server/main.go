package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/outreach-core/internal/api"
	"github.com/ignite/outreach-core/internal/app"
	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting outreach-core API server...")

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
	log.Printf("Services initialized: %d campaigns, channels %v", len(a.Sequencer.Catalog().IDs()), a.Transport.Channels())

	srv, err := api.NewServer(api.Deps{
		Gate:      a.Gate,
		Signals:   a.Signals,
		Contacts:  a.Contacts,
		Router:    a.Router,
		Sequencer: a.Sequencer,
		Health:    api.NewHealthChecker(a.DB, a.Redis),
	})
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}

	// The API process can also drive escalations when no dedicated worker runs.
	var scheduler *worker.EscalationScheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewEscalationScheduler(a.Sequencer, a.States, a.Locks,
			worker.WithInterval(cfg.Scheduler.Interval()))
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start escalation scheduler: %v", err)
		}
		log.Printf("Escalation scheduler started (every %s)", cfg.Scheduler.Interval())
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatal(err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Routes(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
