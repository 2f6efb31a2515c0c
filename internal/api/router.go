package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/dxhuy/werewolf-agents/internal/db"
	"github.com/dxhuy/werewolf-agents/internal/game"
	mw "github.com/dxhuy/werewolf-agents/internal/middleware"
	"github.com/dxhuy/werewolf-agents/internal/validation"
	ws "github.com/dxhuy/werewolf-agents/internal/websocket"
)

// session is one hosted game: the machine plus a guard against concurrent
// stepping.
type session struct {
	machine *game.Machine
	rules   game.RulesConfig
	mu      sync.Mutex
	running bool
}

// Server handles HTTP requests
type Server struct {
	router      chi.Router
	db          *db.DB
	hub         *ws.Hub
	agent       game.Completer
	sessions    map[string]*session
	sessionsMu  sync.RWMutex
	rateLimiter *mw.RateLimiter
}

// NewServer creates a new API server
func NewServer(database *db.DB, hub *ws.Hub, agent game.Completer) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		db:          database,
		hub:         hub,
		agent:       agent,
		sessions:    make(map[string]*session),
		rateLimiter: mw.NewRateLimiter(20, 40),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeadersMiddleware)
	s.router.Use(mw.MaxBodySizeMiddleware(256 * 1024))

	// Public endpoints
	s.router.Post("/api/auth/token", s.issueToken)
	s.router.Get("/api/games", s.listGames)
	s.router.Get("/api/games/{id}", s.getGame)
	s.router.Get("/api/games/{id}/logs", s.getLogs)
	s.router.Get("/api/games/{id}/qr", s.getQR)
	s.router.Get("/api/games/{id}/ws", s.serveWS)

	// Protected endpoints (auth required)
	s.router.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Post("/api/games", s.createGame)
		r.Post("/api/games/{id}/step", s.stepGame)
		r.Post("/api/games/{id}/run", s.runGame)
		r.Delete("/api/games/{id}", s.deleteGame)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response wraps API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (sanitized)
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

// issueToken exchanges a user ID for a signed token. There is no account
// system; the token only ties created games to their creator.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing user ID")
		return
	}
	if err := validation.ValidateSeatID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := mw.GenerateToken(req.UserID, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Authentication unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"token": token},
	})
}

// checkGameOwnership verifies the authenticated user owns the game
func (s *Server) checkGameOwnership(w http.ResponseWriter, r *http.Request, gameID string) bool {
	userID := mw.GetUserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user ID")
		return false
	}

	isOwner, err := s.db.IsGameOwner(gameID, userID)
	if err != nil || !isOwner {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

// createGameRequest is the table setup. Everything beyond the seat count is
// optional.
type createGameRequest struct {
	Seats         int                 `json:"seats"`
	Names         []string            `json:"names,omitempty"`
	Personalities []string            `json:"personalities,omitempty"`
	Roster        []game.Role         `json:"roster,omitempty"`
	Seed          int64               `json:"seed,omitempty"`
	TurnTimeout   int                 `json:"turn_timeout_seconds,omitempty"`
	EndConditions []game.EndCondition `json:"end_conditions,omitempty"`
}

// createGame creates a new game
func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Seats == 0 {
		req.Seats = len(req.Roster)
	}
	if err := validation.ValidateSeatCount(req.Seats); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rules := game.DefaultRules(req.Seats)
	if len(req.Roster) > 0 {
		rules.Roster = req.Roster
	}
	rules.Seed = req.Seed
	if req.TurnTimeout > 0 {
		rules.TurnTimeout = time.Duration(req.TurnTimeout) * time.Second
	}
	rules.EndConditions = req.EndConditions

	seats := make([]game.Seat, req.Seats)
	for i := range seats {
		seats[i] = game.Seat{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Player %d", i+1)}
		if i < len(req.Names) {
			if err := validation.ValidateSeatName(req.Names[i]); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			seats[i].Name = req.Names[i]
		}
		if i < len(req.Personalities) {
			seats[i].Personality = req.Personalities[i]
		}
	}

	// Server-side game ID; client-supplied IDs are not trusted.
	gameID := uuid.New().String()

	machine, err := game.NewMachine(gameID, seats, rules, s.agent, s.eventSink())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.SaveGame(machine.State(), rules); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save game")
		return
	}
	if err := s.db.SaveGameOwnership(gameID, mw.GetUserID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save game")
		return
	}

	s.sessionsMu.Lock()
	s.sessions[gameID] = &session{machine: machine, rules: rules}
	s.sessionsMu.Unlock()

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    gameInfo(machine.State()),
	})
}

// eventSink fans events out to the websocket hub and the event store.
func (s *Server) eventSink() game.EventSink {
	return game.CombineSinks(s.hub.EventSink(), s.db.EventSink())
}

// getSession returns the live session, resuming it from storage if the
// server restarted since the game was created.
func (s *Server) getSession(gameID string) (*session, error) {
	s.sessionsMu.RLock()
	sess, ok := s.sessions[gameID]
	s.sessionsMu.RUnlock()
	if ok {
		return sess, nil
	}

	state, rules, err := s.db.LoadGame(gameID)
	if err != nil {
		return nil, err
	}
	machine, err := game.ResumeMachine(state, rules, s.agent, s.eventSink())
	if err != nil {
		return nil, err
	}

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if existing, ok := s.sessions[gameID]; ok {
		return existing, nil
	}
	sess = &session{machine: machine, rules: rules}
	s.sessions[gameID] = sess
	return sess, nil
}

// listGames lists all games
func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.db.ListGames()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list games")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    games,
	})
}

// gameInfo is the public view of a game: no roles, no private knowledge.
func gameInfo(state *game.State) map[string]interface{} {
	info := state.Snapshot()
	if state.Winner != "" {
		info["winner"] = string(state.Winner)
	}
	return info
}

// getGame gets a game's public state
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}

	sess, err := s.getSession(gameID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    gameInfo(sess.machine.State()),
	})
}

// stepGame advances the game by one phase
func (s *Server) stepGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	if !s.checkGameOwnership(w, r, gameID) {
		return
	}

	sess, err := s.getSession(gameID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}

	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		writeError(w, http.StatusConflict, "Game is already running")
		return
	}
	phase, err := sess.machine.Step(r.Context())
	if err == nil {
		err = s.db.SaveGame(sess.machine.State(), sess.rules)
	}
	sess.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"phase": phase,
			"info":  gameInfo(sess.machine.State()),
		},
	})
}

// runGame drives the game to completion in the background
func (s *Server) runGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	if !s.checkGameOwnership(w, r, gameID) {
		return
	}

	sess, err := s.getSession(gameID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}

	sess.mu.Lock()
	if sess.running || sess.machine.Finished() {
		sess.mu.Unlock()
		writeError(w, http.StatusConflict, "Game is already running or finished")
		return
	}
	sess.running = true
	sess.mu.Unlock()

	go func() {
		// Detached from the request context; the game outlives the response.
		if err := sess.machine.Run(context.Background()); err != nil {
			log.Printf("game %s run aborted: %v", gameID, err)
		}
		if err := s.db.SaveGame(sess.machine.State(), sess.rules); err != nil {
			log.Printf("game %s save failed: %v", gameID, err)
		}
		sess.mu.Lock()
		sess.running = false
		sess.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data:    "Game running",
	})
}

// getLogs returns the public event log; pass ?seat=<id> to include that
// seat's private entries.
func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}

	seat := r.URL.Query().Get("seat")
	if seat != "" {
		if err := validation.ValidateSeatID(seat); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid seat ID")
			return
		}
	}

	events, err := s.db.ListEvents(gameID, seat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load logs")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    events,
	})
}

// getQR renders a QR code linking to the game's watch URL.
func (s *Server) getQR(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}

	base := os.Getenv("PUBLIC_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	png, err := qrcode.Encode(fmt.Sprintf("%s/api/games/%s", base, gameID), qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// serveWS upgrades to a websocket event stream; pass ?seat=<id> to also
// receive that seat's private events.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}

	seat := r.URL.Query().Get("seat")
	if seat != "" {
		if err := validation.ValidateSeatID(seat); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid seat ID")
			return
		}
	}

	ws.ServeWS(s.hub, w, r, gameID, seat)
}

// deleteGame deletes a game and all its data
func (s *Server) deleteGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	if !s.checkGameOwnership(w, r, gameID) {
		return
	}

	s.sessionsMu.Lock()
	delete(s.sessions, gameID)
	s.sessionsMu.Unlock()

	if err := s.db.DeleteGame(gameID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete game")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "Game deleted",
	})
}
