package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnsmart/backend/internal/config"
	"github.com/learnsmart/backend/internal/mock"
	"github.com/learnsmart/backend/internal/progression"
	"github.com/learnsmart/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Drive the engine with a simulated learner")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	stateDir := flag.String("state-dir", "", "Override progression state directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *stateDir != "" {
		cfg.Storage.Dir = *stateDir
	}

	store := progression.NewStore(cfg.Storage.Dir)
	broadcaster := ws.NewBroadcaster(cfg.Notify.SnapshotInterval)

	engine, err := progression.NewEngine(store, broadcaster)
	if err != nil {
		log.Fatalf("Failed to load progression state: %v", err)
	}
	broadcaster.SetSource(engine)

	engine.XP.OnGain(broadcaster.BroadcastXPGain)
	engine.Rank.OnRankUp(broadcaster.BroadcastRankUp)
	engine.Badges.OnUnlock(broadcaster.BroadcastBadge)
	engine.Streak.OnUpdate(broadcaster.BroadcastStreak)

	server := ws.NewServer(engine, broadcaster, cfg.Auth.AllowedOrigins, cfg.Auth.Token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Run(ctx)

	if *mockMode {
		log.Println("Starting in mock mode (simulated learner)")
		gen := mock.NewGenerator(engine)
		gen.Start(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		engine.SaveNow()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
