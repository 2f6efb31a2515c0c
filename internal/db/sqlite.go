package db

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dxhuy/werewolf-agents/internal/game"
)

// DB wraps database operations
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// GameSummary is one row of the game list.
type GameSummary struct {
	ID     string     `json:"id"`
	Seats  int        `json:"seats"`
	Round  int        `json:"round"`
	Phase  game.Phase `json:"phase"`
	Winner string     `json:"winner,omitempty"`
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	// Run migrations
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		seats INTEGER NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		winner TEXT,
		rules_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS game_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS game_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		type TEXT NOT NULL,
		player_id TEXT,
		visibility TEXT NOT NULL,
		audience TEXT,
		payload_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS game_ownership (
		game_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_game_states_game_id ON game_states(game_id);
	CREATE INDEX IF NOT EXISTS idx_game_events_game_id ON game_events(game_id);
	CREATE INDEX IF NOT EXISTS idx_game_ownership_user_id ON game_ownership(user_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveGame upserts the game row and appends a state snapshot.
func (db *DB) SaveGame(state *game.State, rules game.RulesConfig) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO games (id, seats, round, phase, winner, rules_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			round = excluded.round,
			phase = excluded.phase,
			winner = excluded.winner,
			updated_at = CURRENT_TIMESTAMP
	`, state.ID, len(state.Players()), state.Round, string(state.Phase), string(state.Winner), rulesJSON)
	if err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO game_states (game_id, round, phase, state_json)
		VALUES (?, ?, ?, ?)
	`, state.ID, state.Round, string(state.Phase), stateJSON)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadGame loads the latest state snapshot and the game's rules.
func (db *DB) LoadGame(gameID string) (*game.State, game.RulesConfig, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rules game.RulesConfig

	var rulesJSON string
	err := db.conn.QueryRow(`
		SELECT rules_json FROM games WHERE id = ?
	`, gameID).Scan(&rulesJSON)
	if err != nil {
		return nil, rules, err
	}
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		return nil, rules, err
	}

	var stateJSON string
	err = db.conn.QueryRow(`
		SELECT state_json FROM game_states
		WHERE game_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, gameID).Scan(&stateJSON)
	if err != nil {
		return nil, rules, err
	}

	state := &game.State{}
	if err := json.Unmarshal([]byte(stateJSON), state); err != nil {
		return nil, rules, err
	}

	return state, rules, nil
}

// ListGames returns summaries of all games, newest first.
func (db *DB) ListGames() ([]GameSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, seats, round, phase, winner FROM games ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []GameSummary
	for rows.Next() {
		var g GameSummary
		var winner sql.NullString
		if err := rows.Scan(&g.ID, &g.Seats, &g.Round, &g.Phase, &winner); err != nil {
			return nil, err
		}
		if winner.Valid {
			g.Winner = winner.String
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

// AppendEvent persists one emitted game event.
func (db *DB) AppendEvent(e game.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		INSERT INTO game_events (game_id, round, phase, type, player_id, visibility, audience, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.GameID, e.Round, string(e.Phase), string(e.Type), e.PlayerID,
		string(e.Visibility), e.Audience, payloadJSON, e.CreatedAt)
	return err
}

// ListEvents returns a game's events in emission order. When audience is
// empty only public events are returned; otherwise the audience's private
// events are included too.
func (db *DB) ListEvents(gameID, audience string) ([]game.Event, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT round, phase, type, player_id, visibility, audience, payload_json, created_at
		FROM game_events
		WHERE game_id = ? AND (visibility = 'public' OR audience = ?)
		ORDER BY id ASC
	`, gameID, audience)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []game.Event
	for rows.Next() {
		e := game.Event{GameID: gameID}
		var phase, typ, visibility string
		var playerID, aud sql.NullString
		var payloadJSON []byte
		if err := rows.Scan(&e.Round, &phase, &typ, &playerID, &visibility, &aud, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Phase = game.Phase(phase)
		e.Type = game.EventType(typ)
		e.Visibility = game.Visibility(visibility)
		if playerID.Valid {
			e.PlayerID = playerID.String
		}
		if aud.Valid {
			e.Audience = aud.String
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// EventSink returns a sink persisting every emitted event. Write failures
// are swallowed; persistence must never stall a running game.
func (db *DB) EventSink() game.EventSink {
	return game.SinkFunc(func(e game.Event) {
		_ = db.AppendEvent(e)
	})
}

// SaveGameOwnership saves game ownership
func (db *DB) SaveGameOwnership(gameID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO game_ownership (game_id, user_id)
		VALUES (?, ?)
	`, gameID, userID)
	return err
}

// GetGameOwner returns the owner of a game
func (db *DB) GetGameOwner(gameID string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var userID string
	err := db.conn.QueryRow(`
		SELECT user_id FROM game_ownership WHERE game_id = ?
	`, gameID).Scan(&userID)

	if err != nil {
		return "", err
	}
	return userID, nil
}

// IsGameOwner checks if user owns the game
func (db *DB) IsGameOwner(gameID, userID string) (bool, error) {
	owner, err := db.GetGameOwner(gameID)
	if err != nil {
		return false, err
	}
	return owner == userID, nil
}

// DeleteGame deletes a game and all its data
func (db *DB) DeleteGame(gameID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("DELETE FROM games WHERE id = ?", gameID)
	return err
}
