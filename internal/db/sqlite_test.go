package db

import (
	"testing"
	"time"

	"github.com/dxhuy/werewolf-agents/internal/game"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func newTestGame(t *testing.T, id string) (*game.Machine, game.RulesConfig) {
	t.Helper()
	rules := game.DefaultRules(6)
	rules.Seed = 7
	seats := make([]game.Seat, 6)
	for i := range seats {
		seats[i] = game.Seat{ID: string(rune('a' + i)), Name: "seat"}
	}
	m, err := game.NewMachine(id, seats, rules, nil, nil)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m, rules
}

func TestSaveLoadGame(t *testing.T) {
	database := newTestDB(t)
	m, rules := newTestGame(t, "g1")
	state := m.State()

	if err := database.SaveGame(state, rules); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	loaded, loadedRules, err := database.LoadGame("g1")
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.ID != "g1" || loaded.Phase != game.PhasePreparation {
		t.Errorf("loaded id=%s phase=%s", loaded.ID, loaded.Phase)
	}
	if len(loaded.Players()) != 6 {
		t.Errorf("loaded %d players, want 6", len(loaded.Players()))
	}
	if loaded.Player("a") == nil {
		t.Error("seat index not rebuilt after load")
	}
	if len(loadedRules.Roster) != 6 || loadedRules.Seed != 7 {
		t.Errorf("loaded rules = %+v", loadedRules)
	}
}

func TestSaveGameKeepsLatestSnapshot(t *testing.T) {
	database := newTestDB(t)
	m, rules := newTestGame(t, "g2")
	state := m.State()

	if err := database.SaveGame(state, rules); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	state.Round = 3
	state.Phase = game.PhaseDayVoting
	if err := database.SaveGame(state, rules); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	loaded, _, err := database.LoadGame("g2")
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.Round != 3 || loaded.Phase != game.PhaseDayVoting {
		t.Errorf("loaded round=%d phase=%s, want latest snapshot", loaded.Round, loaded.Phase)
	}

	games, err := database.ListGames()
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 1 || games[0].Round != 3 {
		t.Errorf("list = %+v", games)
	}
}

func TestEventVisibilityFilter(t *testing.T) {
	database := newTestDB(t)
	m, rules := newTestGame(t, "g3")
	if err := database.SaveGame(m.State(), rules); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	sink := database.EventSink()
	sink.Emit(game.Event{
		GameID: "g3", Type: game.EventSpeech, Round: 1, Phase: game.PhaseDayDiscussion,
		PlayerID: "a", Visibility: game.VisibilityPublic,
		Payload: map[string]interface{}{"message": "hello"}, CreatedAt: time.Now(),
	})
	sink.Emit(game.Event{
		GameID: "g3", Type: game.EventDecision, Round: 1, Phase: game.PhaseNight,
		PlayerID: "b", Visibility: game.VisibilityPrivate, Audience: "b",
		Payload: map[string]interface{}{"reasoning": "secret"}, CreatedAt: time.Now(),
	})

	public, err := database.ListEvents("g3", "")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(public) != 1 || public[0].Type != game.EventSpeech {
		t.Errorf("public events = %+v", public)
	}

	forB, err := database.ListEvents("g3", "b")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(forB) != 2 {
		t.Errorf("audience b sees %d events, want 2", len(forB))
	}

	forC, err := database.ListEvents("g3", "c")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(forC) != 1 {
		t.Errorf("audience c sees %d events, want 1 (public only)", len(forC))
	}
}

func TestGameOwnership(t *testing.T) {
	database := newTestDB(t)
	m, rules := newTestGame(t, "g4")
	if err := database.SaveGame(m.State(), rules); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	if err := database.SaveGameOwnership("g4", "user-1"); err != nil {
		t.Fatalf("SaveGameOwnership: %v", err)
	}
	ok, err := database.IsGameOwner("g4", "user-1")
	if err != nil || !ok {
		t.Errorf("IsGameOwner = %t/%v, want true", ok, err)
	}
	ok, err = database.IsGameOwner("g4", "user-2")
	if err != nil || ok {
		t.Errorf("IsGameOwner for stranger = %t/%v, want false", ok, err)
	}
}
