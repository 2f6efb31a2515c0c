package game

import (
	"container/list"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dxhuy/werewolf-agents/internal/agents"
)

// Completer is the agent client boundary: prompt in, raw text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Seat describes one chair before roles are dealt.
type Seat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality,omitempty"`
}

// pendingShot is a queued hunter reaction, processed before the phase moves
// on. Only wolf-kill and vote deaths queue one; poison never does.
type pendingShot struct {
	hunter *Player
}

// Machine drives the round/phase cycle. Seats needing a decision are
// processed strictly one at a time, so every prompt reflects the fully
// committed state and the log order is deterministic.
type Machine struct {
	state     *State
	resolver  *Resolver
	agent     Completer
	rules     RulesConfig
	sink      EventSink
	rng       *rand.Rand
	reactions *list.List // *pendingShot
	mu        sync.Mutex
}

// NewMachine creates a machine in the preparation phase.
func NewMachine(gameID string, seats []Seat, rules RulesConfig, agent Completer, sink EventSink) (*Machine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if err := rules.Compile(); err != nil {
		return nil, err
	}
	if len(seats) != len(rules.Roster) {
		return nil, fmt.Errorf("got %d seats for a %d-seat roster", len(seats), len(rules.Roster))
	}

	players := make([]*Player, len(seats))
	for i, seat := range seats {
		players[i] = &Player{
			ID:          seat.ID,
			Name:        seat.Name,
			Status:      StatusActive,
			Personality: seat.Personality,
		}
	}

	seed := rules.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	state := NewState(gameID, players)
	return &Machine{
		state:     state,
		resolver:  NewResolver(state),
		agent:     agent,
		rules:     rules,
		sink:      sink,
		rng:       rand.New(rand.NewSource(seed)),
		reactions: list.New(),
	}, nil
}

// ResumeMachine rebuilds a machine around a persisted state. The state must
// sit at a phase boundary, which is where games are saved.
func ResumeMachine(state *State, rules RulesConfig, agent Completer, sink EventSink) (*Machine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if err := rules.Compile(); err != nil {
		return nil, err
	}
	seed := rules.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Machine{
		state:     state,
		resolver:  NewResolver(state),
		agent:     agent,
		rules:     rules,
		sink:      sink,
		rng:       rand.New(rand.NewSource(seed)),
		reactions: list.New(),
	}, nil
}

// State returns the owned game state.
func (m *Machine) State() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Finished reports whether the game has reached game_over.
func (m *Machine) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase == PhaseGameOver
}

// Run advances phases until game over or cancellation.
func (m *Machine) Run(ctx context.Context) error {
	for {
		phase, err := m.Step(ctx)
		if err != nil {
			return err
		}
		if phase == PhaseGameOver {
			return nil
		}
	}
}

// Step executes the current phase to completion and transitions out of it.
// Cancellation is observed at each agent call and aborts the phase without
// committing the in-flight decision.
func (m *Machine) Step(ctx context.Context) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Phase {
	case PhasePreparation:
		return m.runPreparation()
	case PhaseNight:
		return m.runNight(ctx)
	case PhaseDayDiscussion:
		return m.runDiscussion(ctx)
	case PhaseDayVoting:
		return m.runVoting(ctx)
	case PhaseGameOver:
		return PhaseGameOver, fmt.Errorf("game %s is already over", m.state.ID)
	default:
		return m.state.Phase, fmt.Errorf("unknown phase %q", m.state.Phase)
	}
}

// runPreparation deals the roster across the seats and opens the first
// night.
func (m *Machine) runPreparation() (Phase, error) {
	roster := make([]Role, len(m.rules.Roster))
	copy(roster, m.rules.Roster)
	m.rng.Shuffle(len(roster), func(i, j int) {
		roster[i], roster[j] = roster[j], roster[i]
	})
	for i, p := range m.state.Players() {
		p.Role = roster[i]
	}

	m.state.appendLog(LogEntry{
		Type:       "game_start",
		Message:    fmt.Sprintf("game begins with %d players", len(m.state.Players())),
		Visibility: VisibilityPublic,
	})
	m.transition(PhaseNight)
	return PhaseNight, nil
}

// runNight collects every mandatory night action in fixed seat order
// (guard, wolves, seer, witch), then resolves the dawn.
func (m *Machine) runNight(ctx context.Context) (Phase, error) {
	m.state.resetNight()

	if guard := m.state.AliveByRole(RoleGuard); guard != nil {
		if err := m.takeAndApply(ctx, guard, ActionGuard); err != nil {
			return m.state.Phase, err
		}
	}

	for _, wolf := range m.state.AliveWolves() {
		if err := m.takeAndApply(ctx, wolf, ActionKill); err != nil {
			return m.state.Phase, err
		}
	}
	m.resolver.ReconcileWolfKill()

	if seer := m.state.AliveByRole(RoleSeer); seer != nil {
		if err := m.takeAndApply(ctx, seer, ActionCheck); err != nil {
			return m.state.Phase, err
		}
	}

	if witch := m.state.AliveByRole(RoleWitch); witch != nil {
		kind := ActionPoison
		if m.state.PendingKill() != "" && !witch.SaveUsed {
			kind = ActionSave
		}
		if err := m.takeAndApply(ctx, witch, kind); err != nil {
			return m.state.Phase, err
		}
	}

	deaths := m.resolver.ResolveNight()
	if over, err := m.processEliminations(ctx, deaths); over || err != nil {
		return m.state.Phase, err
	}

	m.transition(PhaseDayDiscussion)
	return PhaseDayDiscussion, nil
}

// runDiscussion lets every active seat speak once, in seating order. An
// empty or failed turn is a skip, not an error.
func (m *Machine) runDiscussion(ctx context.Context) (Phase, error) {
	for _, p := range m.state.AlivePlayers() {
		dec, err := m.takeTurn(ctx, p, ActionDiscussion)
		if err != nil {
			return m.state.Phase, err
		}
		if dec.Message == "" {
			m.state.appendLog(LogEntry{
				Type:       "speech_skipped",
				PlayerID:   p.ID,
				Message:    fmt.Sprintf("%s stays silent", p.ID),
				Visibility: VisibilityPublic,
			})
			continue
		}
		m.resolver.ApplySpeech(p, dec.Message, string(dec.Emotion))
		m.emit(Event{
			Type:       EventSpeech,
			PlayerID:   p.ID,
			Visibility: VisibilityPublic,
			Payload: map[string]interface{}{
				"message": dec.Message,
				"emotion": string(dec.Emotion),
			},
		})
	}

	m.transition(PhaseDayVoting)
	return PhaseDayVoting, nil
}

// runVoting collects every active ballot, commits the tally, and either
// opens the next night or ends the game.
func (m *Machine) runVoting(ctx context.Context) (Phase, error) {
	for _, p := range m.state.AlivePlayers() {
		dec, err := m.takeTurn(ctx, p, ActionVote)
		if err != nil {
			return m.state.Phase, err
		}
		if applyErr := m.resolver.Apply(p, ActionVote, dec); applyErr != nil {
			// Already substituted and logged by the resolver.
			_ = applyErr
		}
		m.emit(Event{
			Type:       EventVoteCast,
			PlayerID:   p.ID,
			Visibility: VisibilityPublic,
			Payload:    map[string]interface{}{"voter": p.ID},
		})
	}

	if target, ok := m.resolver.TallyVotes(); ok {
		elim := m.resolver.EliminateByVote(target)
		if over, err := m.processEliminations(ctx, []Elimination{elim}); over || err != nil {
			if err == nil {
				m.state.Round++
			}
			return m.state.Phase, err
		}
	}

	if winner, over := m.rules.EvaluateEnd(m.state.Snapshot()); over {
		m.state.Round++
		m.finish(winner)
		return PhaseGameOver, nil
	}

	m.state.Round++
	m.transition(PhaseNight)
	return PhaseNight, nil
}

// processEliminations emits each death, runs the win check after every one,
// and lets an eliminated hunter shoot when the cause allows it. Returns
// true when the game ended.
func (m *Machine) processEliminations(ctx context.Context, deaths []Elimination) (bool, error) {
	for _, death := range deaths {
		m.emit(Event{
			Type:       EventElimination,
			PlayerID:   death.PlayerID,
			Visibility: VisibilityPublic,
			Payload:    map[string]interface{}{"cause": string(death.Cause)},
		})

		// Death by poison disables the hunter's shot entirely.
		victim := m.state.Player(death.PlayerID)
		if victim != nil && victim.Role == RoleHunter && (death.Cause == CauseWolf || death.Cause == CauseVote) {
			m.reactions.PushBack(&pendingShot{hunter: victim})
		}

		if winner, over := m.resolver.CheckWin(); over {
			m.finish(winner)
			return true, nil
		}
	}

	// Queued hunter shots fire before the phase moves on.
	for m.reactions.Len() > 0 {
		elem := m.reactions.Front()
		m.reactions.Remove(elem)
		shot := elem.Value.(*pendingShot)

		dec, err := m.takeTurn(ctx, shot.hunter, ActionShoot)
		if err != nil {
			return false, err
		}
		target, _ := m.resolver.ApplyShoot(shot.hunter, dec.Target)
		if target == "" {
			continue
		}
		if over, err := m.processEliminations(ctx, []Elimination{{PlayerID: target, Cause: CauseShot}}); over || err != nil {
			return over, err
		}
	}

	return false, nil
}

// takeAndApply runs one agent turn and commits it through the resolver.
func (m *Machine) takeAndApply(ctx context.Context, p *Player, kind ActionKind) error {
	dec, err := m.takeTurn(ctx, p, kind)
	if err != nil {
		return err
	}
	if applyErr := m.resolver.Apply(p, kind, dec); applyErr != nil {
		// The resolver substituted a legal default and logged the violation.
		_ = applyErr
	}
	return nil
}

// takeTurn builds the prompt, calls the agent under the turn timeout, and
// parses the response. Transport, parse, and validation failures all fall
// back to the default action for the kind; only cancellation of the parent
// context aborts the phase.
func (m *Machine) takeTurn(ctx context.Context, p *Player, kind ActionKind) (*agents.Decision, error) {
	vocab := LegalTargets(p, m.state, kind)
	prompt := BuildPrompt(p, m.state, kind)

	turnCtx, cancel := context.WithTimeout(ctx, m.rules.TurnTimeout)
	raw, err := m.agent.Complete(turnCtx, prompt)
	cancel()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		m.state.appendLog(LogEntry{
			Type:       "turn_fallback",
			PlayerID:   p.ID,
			Message:    fmt.Sprintf("agent call failed (%v); applying default action", err),
			Visibility: VisibilityPrivate,
			Audience:   p.ID,
		})
		return m.defaultDecision(p, kind), nil
	}

	dec, err := agents.ParseDecision(raw, vocab)
	if err != nil {
		m.state.appendLog(LogEntry{
			Type:       "turn_fallback",
			PlayerID:   p.ID,
			Message:    fmt.Sprintf("unusable agent response (%v); applying default action", err),
			Visibility: VisibilityPrivate,
			Audience:   p.ID,
			Raw:        raw,
		})
		return m.defaultDecision(p, kind), nil
	}

	m.emit(Event{
		Type:       EventDecision,
		PlayerID:   p.ID,
		Visibility: VisibilityPrivate,
		Audience:   p.ID,
		Payload: map[string]interface{}{
			"kind":       string(kind),
			"target":     dec.Target,
			"reasoning":  dec.Reasoning,
			"confidence": dec.Confidence,
			"emotion":    string(dec.Emotion),
		},
	})
	return dec, nil
}

// defaultDecision is the documented fallback policy: skip for optional
// actions (witch, discussion), first legal target for mandatory ones.
func (m *Machine) defaultDecision(p *Player, kind ActionKind) *agents.Decision {
	dec := &agents.Decision{Emotion: agents.EmotionNeutral, Confidence: 0}
	switch kind {
	case ActionSave, ActionPoison:
		dec.Target = WitchSkip
	case ActionDiscussion:
		// Empty message means the seat is skipped.
	default:
		vocab := LegalTargets(p, m.state, kind)
		if len(vocab) > 0 {
			dec.Target = vocab[0]
		}
	}
	return dec
}

// transition changes phase and emits the transition event.
func (m *Machine) transition(next Phase) {
	from := m.state.Phase
	m.state.Phase = next
	m.emit(Event{
		Type:       EventPhaseChanged,
		Visibility: VisibilityPublic,
		Payload: map[string]interface{}{
			"from": string(from),
			"to":   string(next),
		},
	})
}

// finish ends the game immediately, preempting the current phase.
func (m *Machine) finish(winner Camp) {
	m.state.Winner = winner
	m.state.appendLog(LogEntry{
		Type:       "game_over",
		Message:    fmt.Sprintf("the %s camp wins", winner),
		Visibility: VisibilityPublic,
	})
	m.transition(PhaseGameOver)
	m.emit(Event{
		Type:       EventGameOver,
		Visibility: VisibilityPublic,
		Payload:    map[string]interface{}{"winner": string(winner)},
	})
}

// emit stamps and delivers one event to the sink, if any.
func (m *Machine) emit(e Event) {
	if m.sink == nil {
		return
	}
	e.GameID = m.state.ID
	e.Round = m.state.Round
	e.Phase = m.state.Phase
	e.CreatedAt = time.Now()
	m.sink.Emit(e)
}
