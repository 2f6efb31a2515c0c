package game

import (
	"encoding/json"
	"time"
)

// Phase is the current step of the round cycle.
type Phase string

const (
	PhasePreparation   Phase = "preparation"
	PhaseNight         Phase = "night"
	PhaseDayDiscussion Phase = "day_discussion"
	PhaseDayVoting     Phase = "day_voting"
	PhaseGameOver      Phase = "game_over"
)

// PlayerStatus is a one-way active -> eliminated transition.
type PlayerStatus string

const (
	StatusActive     PlayerStatus = "active"
	StatusEliminated PlayerStatus = "eliminated"
)

// Player is one seat. Role and camp are fixed at assignment.
type Player struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Status      PlayerStatus `json:"status"`
	Personality string       `json:"personality,omitempty"`

	// Witch potions are independent single-use flags.
	SaveUsed   bool `json:"save_used,omitempty"`
	PoisonUsed bool `json:"poison_used,omitempty"`
	// SavedThisRound marks a pending death cleared by the witch this night.
	SavedThisRound bool `json:"saved_this_round,omitempty"`
	// LastGuardedID enforces the guard's non-repetition rule.
	LastGuardedID string `json:"last_guarded_id,omitempty"`
}

// Camp returns the player's derived camp.
func (p *Player) Camp() Camp {
	return CampOf(p.Role)
}

// Alive reports whether the seat is still active.
func (p *Player) Alive() bool {
	return p.Status == StatusActive
}

// Vote is one appended ballot, scoped to a round.
type Vote struct {
	VoterID  string `json:"voter_id"`
	TargetID string `json:"target_id"`
	Round    int    `json:"round"`
}

// Speech is one public discussion statement, scoped to round and phase.
type Speech struct {
	PlayerID string `json:"player_id"`
	Round    int    `json:"round"`
	Phase    Phase  `json:"phase"`
	Message  string `json:"message"`
	Emotion  string `json:"emotion,omitempty"`
}

// Visibility tags a log entry as safe to show everyone or one seat only.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// LogEntry is one appended event record. Private entries carry the audience
// seat. Raw keeps the offending payload when a turn failed validation.
type LogEntry struct {
	Round      int        `json:"round"`
	Phase      Phase      `json:"phase"`
	Type       string     `json:"type"`
	PlayerID   string     `json:"player_id,omitempty"`
	Message    string     `json:"message"`
	Visibility Visibility `json:"visibility"`
	Audience   string     `json:"audience,omitempty"`
	Raw        string     `json:"raw,omitempty"`
}

// nightBoard is the per-night scratch state, cleared at dusk and consumed by
// dawn resolution.
type nightBoard struct {
	WolfVotes  []Vote `json:"wolf_votes,omitempty"`
	KillTarget string `json:"kill_target,omitempty"`
	GuardedID  string `json:"guarded_id,omitempty"`
	PoisonedID string `json:"poisoned_id,omitempty"`
	SavedID    string `json:"saved_id,omitempty"`
}

// SeerResult is one private investigation outcome kept for the seer's later
// prompts.
type SeerResult struct {
	Round    int    `json:"round"`
	TargetID string `json:"target_id"`
	Camp     Camp   `json:"camp"`
}

// State is the single owned game state. It is mutated only by the resolver
// under the phase machine's direction.
type State struct {
	ID     string `json:"id"`
	Round  int    `json:"round"`
	Phase  Phase  `json:"phase"`
	Winner Camp   `json:"winner,omitempty"`

	players []*Player
	byID    map[string]*Player

	Votes    []Vote     `json:"votes"`
	Speeches []Speech   `json:"speeches"`
	Logs     []LogEntry `json:"logs"`

	SeerResults []SeerResult `json:"seer_results,omitempty"`

	night nightBoard

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates a preparation-phase state with the given seats in
// seating order.
func NewState(id string, players []*Player) *State {
	s := &State{
		ID:        id,
		Round:     1,
		Phase:     PhasePreparation,
		players:   players,
		byID:      make(map[string]*Player, len(players)),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, p := range players {
		s.byID[p.ID] = p
	}
	return s
}

// Player returns the seat with the given id, or nil.
func (s *State) Player(id string) *Player {
	return s.byID[id]
}

// Players returns all seats in seating order.
func (s *State) Players() []*Player {
	return s.players
}

// AlivePlayers returns active seats in seating order.
func (s *State) AlivePlayers() []*Player {
	var out []*Player
	for _, p := range s.players {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// AliveByRole returns the first active seat with the given role, or nil.
func (s *State) AliveByRole(role Role) *Player {
	for _, p := range s.players {
		if p.Alive() && p.Role == role {
			return p
		}
	}
	return nil
}

// AliveCampCounts returns the number of active seats per camp. Seats count
// for neither camp until roles are dealt, so a preparation-phase snapshot
// reports zero for both.
func (s *State) AliveCampCounts() (wolves, good int) {
	for _, p := range s.players {
		if !p.Alive() || p.Role == "" {
			continue
		}
		if p.Camp() == CampWerewolf {
			wolves++
		} else {
			good++
		}
	}
	return wolves, good
}

// AliveWolves returns active werewolf-camp seats in seating order.
func (s *State) AliveWolves() []*Player {
	var out []*Player
	for _, p := range s.players {
		if p.Alive() && p.Camp() == CampWerewolf {
			out = append(out, p)
		}
	}
	return out
}

// eliminate flips a seat to eliminated. One-way.
func (s *State) eliminate(id string) {
	if p := s.byID[id]; p != nil {
		p.Status = StatusEliminated
		s.UpdatedAt = time.Now()
	}
}

// appendLog appends one event record stamped with the current round/phase.
func (s *State) appendLog(entry LogEntry) {
	entry.Round = s.Round
	entry.Phase = s.Phase
	s.Logs = append(s.Logs, entry)
	s.UpdatedAt = time.Now()
}

// appendVote appends one ballot for the current round.
func (s *State) appendVote(voterID, targetID string) {
	s.Votes = append(s.Votes, Vote{VoterID: voterID, TargetID: targetID, Round: s.Round})
	s.UpdatedAt = time.Now()
}

// appendSpeech appends one discussion statement.
func (s *State) appendSpeech(playerID, message, emotion string) {
	s.Speeches = append(s.Speeches, Speech{
		PlayerID: playerID,
		Round:    s.Round,
		Phase:    s.Phase,
		Message:  message,
		Emotion:  emotion,
	})
	s.UpdatedAt = time.Now()
}

// RoundVotes returns the ballots cast in the given round, in cast order.
func (s *State) RoundVotes(round int) []Vote {
	var out []Vote
	for _, v := range s.Votes {
		if v.Round == round {
			out = append(out, v)
		}
	}
	return out
}

// RoundSpeeches returns a round's discussion statements in spoken order.
func (s *State) RoundSpeeches(round int) []Speech {
	var out []Speech
	for _, sp := range s.Speeches {
		if sp.Round == round {
			out = append(out, sp)
		}
	}
	return out
}

// PendingKill returns the reconciled wolf kill target for tonight, if any.
func (s *State) PendingKill() string {
	return s.night.KillTarget
}

// resetNight clears the per-night scratch state and round-scoped markers.
func (s *State) resetNight() {
	s.night = nightBoard{}
	for _, p := range s.players {
		p.SavedThisRound = false
	}
	s.UpdatedAt = time.Now()
}

// stateJSON is the wire/storage form of State, carrying the seats the
// struct keeps unexported.
type stateJSON struct {
	ID          string       `json:"id"`
	Round       int          `json:"round"`
	Phase       Phase        `json:"phase"`
	Winner      Camp         `json:"winner,omitempty"`
	Players     []*Player    `json:"players"`
	Votes       []Vote       `json:"votes,omitempty"`
	Speeches    []Speech     `json:"speeches,omitempty"`
	Logs        []LogEntry   `json:"logs,omitempty"`
	SeerResults []SeerResult `json:"seer_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MarshalJSON serializes the full state, seats included. The per-night
// scratch board is excluded: games persist at phase boundaries, where it
// is always empty or already consumed.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		ID:          s.ID,
		Round:       s.Round,
		Phase:       s.Phase,
		Winner:      s.Winner,
		Players:     s.players,
		Votes:       s.Votes,
		Speeches:    s.Speeches,
		Logs:        s.Logs,
		SeerResults: s.SeerResults,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	})
}

// UnmarshalJSON restores a persisted state and rebuilds the seat index.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Round = raw.Round
	s.Phase = raw.Phase
	s.Winner = raw.Winner
	s.players = raw.Players
	s.Votes = raw.Votes
	s.Speeches = raw.Speeches
	s.Logs = raw.Logs
	s.SeerResults = raw.SeerResults
	s.CreatedAt = raw.CreatedAt
	s.UpdatedAt = raw.UpdatedAt
	s.byID = make(map[string]*Player, len(raw.Players))
	for _, p := range raw.Players {
		s.byID[p.ID] = p
	}
	return nil
}

// Snapshot returns a flat view of the state for condition evaluation and
// API display. It carries no hidden per-seat information.
func (s *State) Snapshot() map[string]interface{} {
	wolves, good := s.AliveCampCounts()
	playerList := make([]map[string]interface{}, 0, len(s.players))
	for _, p := range s.players {
		playerList = append(playerList, map[string]interface{}{
			"id":     p.ID,
			"name":   p.Name,
			"status": string(p.Status),
		})
	}
	return map[string]interface{}{
		"round":        s.Round,
		"phase":        string(s.Phase),
		"alive_wolves": wolves,
		"alive_good":   good,
		"players":      playerList,
		"vote_count":   len(s.Votes),
	}
}
