package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/somniax/backend/internal/ai"
	"github.com/somniax/backend/internal/api"
	"github.com/somniax/backend/internal/chain"
	"github.com/somniax/backend/internal/config"
	"github.com/somniax/backend/internal/database"
	"github.com/somniax/backend/internal/entitlement"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults applied when empty)")
	flag.Parse()

	// Optional .env for local development.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	log.Printf("🚀 Starting SomniaX backend (chain=%s id=%d)", cfg.Chain.Name, cfg.Chain.ChainID)

	supabaseClient, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("initialize Supabase client: %v", err)
	}

	aiClient, err := ai.NewClient(cfg.AI)
	if err != nil {
		log.Fatalf("initialize AI client: %v", err)
	}

	// Redis is preferred for entitlement state; fall back to in-process
	// storage when it is not reachable so local development still works.
	var store entitlement.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := entitlement.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "")
		if err != nil {
			log.Printf("redis unavailable (%v), using in-memory entitlement store", err)
			store = entitlement.NewMemoryStore()
		} else {
			defer redisStore.Close()
			store = redisStore
		}
	} else {
		store = entitlement.NewMemoryStore()
	}

	trackerCfg, err := entitlement.ConfigFrom(cfg.Chain, cfg.Payment)
	if err != nil {
		log.Fatalf("payment configuration: %v", err)
	}
	explorer := chain.NewExplorerClient(cfg.Chain.ExplorerAPI)
	tracker := entitlement.NewTracker(trackerCfg, store, explorer, entitlement.NewMetrics())

	server := api.NewAPIServer(cfg, aiClient, supabaseClient, tracker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Println("server stopped")
}
