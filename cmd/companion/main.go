package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibeknowing/companion/internal/backend"
	"github.com/vibeknowing/companion/internal/config"
	"github.com/vibeknowing/companion/internal/orchestrate"
	"github.com/vibeknowing/companion/internal/server"
	"github.com/vibeknowing/companion/internal/session"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	log.Println("companion: starting")

	configPath := flag.String("config", envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	client := backend.New(cfg.APIBaseURL, cfg.ParsedRequestTimeout())
	store := session.NewStore()
	hub := server.NewHub()
	store.SetNotifier(hub)

	orchestrator := orchestrate.New(client, store, orchestrate.Options{
		SuggestionPrefix:        cfg.SuggestionPrefix,
		VideoSummaryFallbackLen: cfg.VideoSummaryLen,
	})

	handler, err := server.Handler(assets, hub, orchestrator, store, warnings)
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("companion: web UI on http://%s, backend at %s", cfg.ListenAddr, cfg.APIBaseURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("companion: shutting down")

	orchestrator.Cancel()
	orchestrator.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
