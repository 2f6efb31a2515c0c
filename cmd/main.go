package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/dxhuy/werewolf-agents/internal/agents"
	"github.com/dxhuy/werewolf-agents/internal/api"
	"github.com/dxhuy/werewolf-agents/internal/db"
	"github.com/dxhuy/werewolf-agents/internal/game"
	"github.com/dxhuy/werewolf-agents/internal/websocket"
)

// offlineAgent stands in when no agent API is configured. Every turn fails,
// so games run on the default-action policy, which is enough for local
// development of the API surface.
type offlineAgent struct{}

func (offlineAgent) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("agent backend disabled")
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "werewolf.db"
	}

	// Initialize database
	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Agent client; falls back to offline defaults when disabled
	var agent game.Completer = offlineAgent{}
	cfg := agents.ConfigFromEnv()
	if cfg.Enabled {
		client, err := agents.NewClient(cfg)
		if err != nil {
			log.Fatalf("Invalid agent configuration: %v", err)
		}
		agent = client
		log.Printf("Agent backend enabled (model %s)", cfg.Model)
	} else {
		log.Printf("Agent backend disabled; games run on default actions")
	}

	// Websocket hub for spectators
	hub := websocket.NewHub()
	go hub.Run()

	// Create API server
	server := api.NewServer(database, hub, agent)

	// Start HTTP server
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Starting server on %s", addr)

	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
