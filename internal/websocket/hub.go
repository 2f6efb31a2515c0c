package websocket

import (
	"log"
	"sync"

	"github.com/dxhuy/werewolf-agents/internal/game"
)

// Hub maintains the set of active spectator clients per game and fans out
// game events. Private events reach only the clients watching as the
// audience seat; everyone else sees the public stream.
type Hub struct {
	// Registered clients by game_id -> client set
	games map[string]map[*Client]bool

	// Outbound events from running games
	broadcast chan game.Event

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		games:      make(map[string]map[*Client]bool),
		broadcast:  make(chan game.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.games[client.GameID] == nil {
				h.games[client.GameID] = make(map[*Client]bool)
			}
			h.games[client.GameID][client] = true
			h.mu.Unlock()
			log.Printf("ws client registered game_id=%s seat_id=%s", client.GameID, client.SeatID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.games[client.GameID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.games, client.GameID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("ws client unregistered game_id=%s seat_id=%s", client.GameID, client.SeatID)

		case event := <-h.broadcast:
			// Write lock: slow clients get evicted from the set here.
			h.mu.Lock()
			clients := h.games[event.GameID]
			for client := range clients {
				if !visibleTo(event, client) {
					continue
				}
				select {
				case client.send <- event:
				default:
					close(client.send)
					delete(clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// visibleTo applies the visibility rule: public events go to everyone,
// private events only to the audience seat's own clients.
func visibleTo(event game.Event, client *Client) bool {
	if event.Visibility == game.VisibilityPublic {
		return true
	}
	return event.Audience != "" && event.Audience == client.SeatID
}

// Broadcast queues one game event for fan-out.
func (h *Hub) Broadcast(event game.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("ws broadcast queue full, dropping %s event for game %s", event.Type, event.GameID)
	}
}

// EventSink adapts the hub to the game event stream.
func (h *Hub) EventSink() game.EventSink {
	return game.SinkFunc(h.Broadcast)
}

// GameClientCount returns the number of clients watching a game.
func (h *Hub) GameClientCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}
