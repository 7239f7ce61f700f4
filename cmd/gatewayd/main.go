// Command gatewayd runs the LLM gateway as an HTTP server: an
// OpenAI-compatible /v1/chat/completions endpoint backed by the canonical
// model registry, health-aware selector, and pricing resolver, plus
// /healthz and /metrics for operators.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	aigateway "github.com/ferro-labs/llm-gateway"
	"github.com/ferro-labs/llm-gateway/internal/bootstrap"
	"github.com/ferro-labs/llm-gateway/internal/ingest"
	"github.com/ferro-labs/llm-gateway/internal/storage"
	"github.com/ferro-labs/llm-gateway/internal/tokenizer"
	"github.com/ferro-labs/llm-gateway/internal/version"

	// Register built-in plugins so they can be loaded from config.
	_ "github.com/ferro-labs/llm-gateway/internal/plugins/cache"
	_ "github.com/ferro-labs/llm-gateway/internal/plugins/logger"
	_ "github.com/ferro-labs/llm-gateway/internal/plugins/maxtoken"
	_ "github.com/ferro-labs/llm-gateway/internal/plugins/ratelimit"
	_ "github.com/ferro-labs/llm-gateway/internal/plugins/wordfilter"
)

func main() {
	cfg := loadConfig()

	gw, err := aigateway.New(*cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	defer gw.Close()

	bootstrap.RegisterProviders(gw, cfg)
	if len(gw.ListProviders()) == 0 {
		log.Fatal("No providers configured. Set at least one provider API key in GATEWAY_CONFIG's providers section")
	}

	if cfg.Database.Driver != "" {
		store, err := openStore(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()
		gw.UseStore(store)
		log.Printf("Durable store attached: driver=%s", cfg.Database.Driver)
	}

	gw.UseTokenizer(tokenizer.New(""))

	if len(cfg.IngestProviders) > 0 {
		in := ingest.New(gw.Registry(), bootstrap.Fetcher{Gateway: gw}, ingest.DefaultMapper, cfg.IngestProviders, nil)
		if err := gw.UseIngester(in); err != nil {
			log.Fatalf("Failed to start catalog ingester: %v", err)
		}
		log.Printf("Catalog ingester scheduled: providers=%s", strings.Join(cfg.IngestProviders, ","))
	}

	r := newRouter(gw)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("gatewayd %s listening on %s (%d provider(s))", version.Short(), addr, len(gw.ListProviders()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped.")
}

// loadConfig reads GATEWAY_CONFIG if set, else falls back to an empty
// config. Providers come only from the config's providers section, so an
// empty config registers none and main exits.
func loadConfig() *aigateway.Config {
	cfgPath := os.Getenv("GATEWAY_CONFIG")
	if cfgPath == "" {
		return &aigateway.Config{}
	}
	cfg, err := aigateway.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded from %s: %d curated model(s), %d provider(s)", cfgPath, len(cfg.CuratedModels), len(cfg.Providers))
	return cfg
}

// newRouter builds the HTTP router: OpenAI-compatible chat completions,
// liveness/readiness, and Prometheus metrics.
func newRouter(gw *aigateway.Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/v1/models", listModelsHandler(gw))
	r.Post("/v1/chat/completions", chatCompletionsHandler(gw))

	return r
}

// openStore opens the durable outcome store named by cfg.
func openStore(cfg aigateway.DatabaseConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return storage.NewPostgresStore(cfg.DSN)
	default:
		return storage.NewSQLiteStore(":memory:")
	}
}
