// cmd/flowstate/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fawad-mazhar/flowstate/internal/api/routes"
	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/fawad-mazhar/flowstate/internal/engine"
	"github.com/fawad-mazhar/flowstate/internal/jobs"
	"github.com/fawad-mazhar/flowstate/internal/queue"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/fawad-mazhar/flowstate/internal/store/leveldb"
	"github.com/fawad-mazhar/flowstate/internal/store/postgres"
)

func openStore(cfg *config.Config) (store.JobStore, error) {
	if cfg.Storage.Driver == "postgres" {
		return postgres.NewClient(cfg.Postgres)
	}
	return leveldb.NewClient(cfg.LevelDB)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize the job store
	jobStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer jobStore.Close()

	// Initialize the NATS transport
	transport, err := queue.NewNATS(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer transport.Close()

	// Create the engine and register job definitions
	eng := engine.New(cfg.Scheduler, jobStore, transport)

	dailyReport, err := jobs.DailyReport()
	if err != nil {
		log.Fatalf("Failed to build daily-report definition: %v", err)
	}
	if err := eng.Register(dailyReport); err != nil {
		log.Fatalf("Failed to register daily-report: %v", err)
	}

	// Wire the scheduler and listener entrypoints to the transport
	if err := transport.SubscribeWakeups(eng.RunPass); err != nil {
		log.Fatalf("Failed to subscribe to wakeups: %v", err)
	}
	if err := transport.SubscribeEvents(eng.HandleEvent); err != nil {
		log.Fatalf("Failed to subscribe to events: %v", err)
	}

	// Start the HTTP server
	router := routes.SetupRouter(eng)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting flowstate on port %s (storage driver %s)", cfg.Server.Port, cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Printf("Received shutdown signal: %v", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during HTTP server shutdown: %v", err)
	}

	log.Println("flowstate shutdown complete")
}
