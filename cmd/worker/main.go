package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/adinsight/internal/api"
	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/config"
)

func main() {
	log.Println("Starting adinsight ETL worker...")

	configPath := os.Getenv("ADSYNC_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, app.Options{Registerer: reg})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	log.Println("Connected to database")
	if a.Redis != nil {
		log.Println("Connected to Redis (batch lock and shared gate available)")
	} else {
		log.Println("Redis not configured, using Postgres advisory lock")
	}

	a.Scheduler.SetBaseContext(ctx)
	if err := a.Scheduler.Start(cfg.Batch.Cron); err != nil {
		log.Fatalf("Failed to start batch scheduler: %v", err)
	}
	log.Printf("Batch scheduled: %s", cfg.Batch.Cron)

	handlers := api.NewHandlers(a.Scheduler, a.Analyzer, a.Experiment)
	handlers.SetBaseContext(ctx)
	health := api.NewHealthChecker(a.DB, a.Redis, a.ArchiveClient(), cfg.Archive.S3Bucket)
	health.SetBatchStatus(a.Scheduler, 0)
	server := api.NewServer(cfg.Server, handlers, health, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		log.Printf("Ops server listening on %s", server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ops server shutdown: %v", err)
	}

	// stops manual and scheduled runs so Stop does not wait out the batch
	cancel()
	a.Scheduler.Stop()

	log.Println("Worker stopped")
}
