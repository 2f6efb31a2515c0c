package game

import (
	"fmt"
	"strings"

	"github.com/dxhuy/werewolf-agents/internal/agents"
)

// Cause says how a seat was eliminated. The hunter may only shoot when
// taken by wolves or by vote.
type Cause string

const (
	CauseWolf   Cause = "wolf_kill"
	CausePoison Cause = "poison"
	CauseVote   Cause = "vote"
	CauseShot   Cause = "hunter_shot"
)

// Elimination is one resolved death.
type Elimination struct {
	PlayerID string `json:"player_id"`
	Cause    Cause  `json:"cause"`
}

// RuleViolationError reports a parsed decision that could not be legally
// applied. The resolver substitutes the nearest legal default and logs it;
// the error is informational, never fatal to the game.
type RuleViolationError struct {
	PlayerID string
	Detail   string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("rule violation by %s: %s", e.PlayerID, e.Detail)
}

// Resolver applies validated decisions to the state under role rules. It is
// the only component that mutates State, and each Apply commits atomically:
// either the whole decision lands or none of it does.
type Resolver struct {
	state *State
}

// NewResolver creates a resolver owning the given state.
func NewResolver(state *State) *Resolver {
	return &Resolver{state: state}
}

// Apply applies one validated decision for one acting seat. On a rule
// violation the nearest legal default is substituted, the violation is
// logged, and the returned error describes it.
func (r *Resolver) Apply(p *Player, kind ActionKind, dec *agents.Decision) error {
	switch kind {
	case ActionKill:
		return r.applyKill(p, dec.Target)
	case ActionCheck:
		return r.applyCheck(p, dec.Target)
	case ActionSave, ActionPoison:
		return r.applyWitch(p, kind, dec.Target)
	case ActionGuard:
		return r.applyGuard(p, dec.Target)
	case ActionVote:
		return r.applyVote(p, dec.Target)
	case ActionShoot:
		_, err := r.ApplyShoot(p, dec.Target)
		return err
	case ActionDiscussion:
		r.ApplySpeech(p, dec.Message, string(dec.Emotion))
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", kind)
	}
}

// applyKill records one wolf's kill vote. Votes are reconciled into a single
// target at the end of the wolves' turn.
func (r *Resolver) applyKill(p *Player, target string) error {
	var violation error
	t := r.state.Player(target)
	if t == nil || !t.Alive() || t.Camp() != CampGood {
		violation = &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal kill target %q", target)}
		target = r.firstLegal(p, ActionKill)
		r.logViolation(p, violation)
	}
	if target == "" {
		return violation
	}
	r.state.night.WolfVotes = append(r.state.night.WolfVotes, Vote{VoterID: p.ID, TargetID: target, Round: r.state.Round})
	r.state.appendLog(LogEntry{
		Type:       "wolf_vote",
		PlayerID:   p.ID,
		Message:    fmt.Sprintf("%s marks %s for the kill", p.ID, target),
		Visibility: VisibilityPrivate,
		Audience:   p.ID,
	})
	return violation
}

// ReconcileWolfKill folds the wolves' individual votes into one kill target:
// majority wins, ties broken by the earliest-submitted vote.
func (r *Resolver) ReconcileWolfKill() string {
	votes := r.state.night.WolfVotes
	if len(votes) == 0 {
		return ""
	}
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, v := range votes {
		counts[v.TargetID]++
		if _, ok := firstSeen[v.TargetID]; !ok {
			firstSeen[v.TargetID] = i
		}
	}
	best := ""
	for target, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && firstSeen[target] < firstSeen[best]) {
			best = target
		}
	}
	r.state.night.KillTarget = best
	return best
}

// applyCheck reveals the target's camp, not exact role, to the seer alone.
func (r *Resolver) applyCheck(p *Player, target string) error {
	var violation error
	t := r.state.Player(target)
	if t == nil || !t.Alive() || t.ID == p.ID {
		violation = &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal check target %q", target)}
		target = r.firstLegal(p, ActionCheck)
		r.logViolation(p, violation)
		t = r.state.Player(target)
	}
	if t == nil {
		return violation
	}
	r.state.SeerResults = append(r.state.SeerResults, SeerResult{
		Round:    r.state.Round,
		TargetID: t.ID,
		Camp:     t.Camp(),
	})
	r.state.appendLog(LogEntry{
		Type:       "seer_check",
		PlayerID:   p.ID,
		Message:    fmt.Sprintf("%s belongs to the %s camp", t.ID, t.Camp()),
		Visibility: VisibilityPrivate,
		Audience:   p.ID,
	})
	return violation
}

// applyWitch handles the witch's option-set vocabulary: save_<id>,
// poison_<id>, or skip. Each potion is an independent single-use flag.
func (r *Resolver) applyWitch(p *Player, kind ActionKind, target string) error {
	switch {
	case target == WitchSkip || target == "":
		r.state.appendLog(LogEntry{
			Type:       "witch_skip",
			PlayerID:   p.ID,
			Message:    "the witch does nothing",
			Visibility: VisibilityPrivate,
			Audience:   p.ID,
		})
		return nil

	case strings.HasPrefix(target, "save_"):
		id := strings.TrimPrefix(target, "save_")
		if p.SaveUsed || id != r.state.night.KillTarget {
			violation := &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal save %q", target)}
			r.logViolation(p, violation)
			return violation
		}
		saved := r.state.Player(id)
		saved.SavedThisRound = true
		p.SaveUsed = true
		r.state.night.SavedID = id
		r.state.appendLog(LogEntry{
			Type:       "witch_save",
			PlayerID:   p.ID,
			Message:    fmt.Sprintf("the witch saves %s", id),
			Visibility: VisibilityPrivate,
			Audience:   p.ID,
		})
		return nil

	case strings.HasPrefix(target, "poison_"):
		id := strings.TrimPrefix(target, "poison_")
		t := r.state.Player(id)
		if p.PoisonUsed || t == nil || !t.Alive() || id == p.ID {
			violation := &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal poison %q", target)}
			r.logViolation(p, violation)
			return violation
		}
		p.PoisonUsed = true
		r.state.night.PoisonedID = id
		r.state.appendLog(LogEntry{
			Type:       "witch_poison",
			PlayerID:   p.ID,
			Message:    fmt.Sprintf("the witch poisons %s", id),
			Visibility: VisibilityPrivate,
			Audience:   p.ID,
		})
		return nil

	default:
		violation := &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("unknown witch action %q", target)}
		r.logViolation(p, violation)
		return violation
	}
}

// applyGuard protects a seat for the night; the guard may not repeat the
// immediately-prior night's target.
func (r *Resolver) applyGuard(p *Player, target string) error {
	var violation error
	t := r.state.Player(target)
	if t == nil || !t.Alive() || target == p.LastGuardedID {
		violation = &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal guard target %q", target)}
		target = r.firstLegal(p, ActionGuard)
		r.logViolation(p, violation)
	}
	if target == "" {
		return violation
	}
	r.state.night.GuardedID = target
	p.LastGuardedID = target
	r.state.appendLog(LogEntry{
		Type:       "guard_protect",
		PlayerID:   p.ID,
		Message:    fmt.Sprintf("the guard protects %s", target),
		Visibility: VisibilityPrivate,
		Audience:   p.ID,
	})
	return violation
}

// applyVote appends a ballot. Player status is untouched until tally.
func (r *Resolver) applyVote(p *Player, target string) error {
	var violation error
	t := r.state.Player(target)
	if t == nil || !t.Alive() || t.ID == p.ID {
		violation = &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal vote target %q", target)}
		target = r.firstLegal(p, ActionVote)
		r.logViolation(p, violation)
	}
	if target == "" {
		return violation
	}
	r.state.appendVote(p.ID, target)
	r.state.appendLog(LogEntry{
		Type:       "vote",
		PlayerID:   p.ID,
		Message:    fmt.Sprintf("%s votes for %s", p.ID, target),
		Visibility: VisibilityPublic,
	})
	return violation
}

// ApplyShoot resolves the hunter's dying shot: the target is eliminated
// immediately. Returns the eliminated seat id.
func (r *Resolver) ApplyShoot(p *Player, target string) (string, error) {
	var violation error
	t := r.state.Player(target)
	if t == nil || !t.Alive() || t.ID == p.ID {
		violation = &RuleViolationError{PlayerID: p.ID, Detail: fmt.Sprintf("illegal shot target %q", target)}
		target = r.firstLegalShot(p)
		r.logViolation(p, violation)
	}
	if target == "" {
		return "", violation
	}
	r.state.eliminate(target)
	r.state.appendLog(LogEntry{
		Type:       "hunter_shot",
		PlayerID:   p.ID,
		Message:    fmt.Sprintf("the hunter takes %s down with them", target),
		Visibility: VisibilityPublic,
	})
	return target, violation
}

// ApplySpeech appends a public discussion statement.
func (r *Resolver) ApplySpeech(p *Player, message, emotion string) {
	r.state.appendSpeech(p.ID, message, emotion)
	r.state.appendLog(LogEntry{
		Type:       "speech",
		PlayerID:   p.ID,
		Message:    message,
		Visibility: VisibilityPublic,
	})
}

// ResolveNight applies the night board at dawn: the reconciled wolf kill
// lands unless the target was guarded or saved, and the poison target dies
// regardless of protection. Returns the deaths in resolution order.
func (r *Resolver) ResolveNight() []Elimination {
	var deaths []Elimination
	n := r.state.night

	if n.KillTarget != "" {
		victim := r.state.Player(n.KillTarget)
		guarded := n.KillTarget == n.GuardedID
		saved := victim != nil && victim.SavedThisRound
		if victim != nil && victim.Alive() && !guarded && !saved {
			r.state.eliminate(n.KillTarget)
			deaths = append(deaths, Elimination{PlayerID: n.KillTarget, Cause: CauseWolf})
		}
	}

	if n.PoisonedID != "" {
		if victim := r.state.Player(n.PoisonedID); victim != nil && victim.Alive() {
			r.state.eliminate(n.PoisonedID)
			deaths = append(deaths, Elimination{PlayerID: n.PoisonedID, Cause: CausePoison})
		}
	}

	for _, d := range deaths {
		r.state.appendLog(LogEntry{
			Type:       "night_death",
			PlayerID:   d.PlayerID,
			Message:    fmt.Sprintf("%s did not survive the night", d.PlayerID),
			Visibility: VisibilityPublic,
		})
	}
	if len(deaths) == 0 {
		r.state.appendLog(LogEntry{
			Type:       "night_peace",
			Message:    "nobody died last night",
			Visibility: VisibilityPublic,
		})
	}
	return deaths
}

// TallyVotes computes the plurality target of the current round's ballots.
// Tie-break policy: among tied targets, the one whose first ballot was cast
// earliest is eliminated.
func (r *Resolver) TallyVotes() (string, bool) {
	votes := r.state.RoundVotes(r.state.Round)
	if len(votes) == 0 {
		return "", false
	}
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, v := range votes {
		counts[v.TargetID]++
		if _, ok := firstSeen[v.TargetID]; !ok {
			firstSeen[v.TargetID] = i
		}
	}
	best := ""
	for target, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && firstSeen[target] < firstSeen[best]) {
			best = target
		}
	}
	return best, true
}

// EliminateByVote commits the tally result.
func (r *Resolver) EliminateByVote(target string) Elimination {
	r.state.eliminate(target)
	r.state.appendLog(LogEntry{
		Type:       "vote_elimination",
		PlayerID:   target,
		Message:    fmt.Sprintf("%s is eliminated by vote", target),
		Visibility: VisibilityPublic,
	})
	return Elimination{PlayerID: target, Cause: CauseVote}
}

// CheckWin evaluates the win conditions. Good wins when every wolf-camp seat
// is out; wolves win when they match or outnumber the good camp, or when
// every god role and every villager is eliminated.
func (r *Resolver) CheckWin() (Camp, bool) {
	wolves, good := r.state.AliveCampCounts()
	if wolves == 0 {
		return CampGood, true
	}
	if wolves >= good {
		return CampWerewolf, true
	}
	gods, villagers := 0, 0
	for _, p := range r.state.AlivePlayers() {
		if IsGod(p.Role) {
			gods++
		}
		if p.Role == RoleVillager {
			villagers++
		}
	}
	if gods == 0 && villagers == 0 {
		return CampWerewolf, true
	}
	return "", false
}

// firstLegal returns the first entry of the seat's legal vocabulary, the
// default for mandatory actions when a turn fails or times out.
func (r *Resolver) firstLegal(p *Player, kind ActionKind) string {
	vocab := LegalTargets(p, r.state, kind)
	if len(vocab) == 0 {
		return ""
	}
	return vocab[0]
}

// firstLegalShot is firstLegal for a hunter who is already eliminated (the
// shot happens after their death is recorded).
func (r *Resolver) firstLegalShot(p *Player) string {
	for _, other := range r.state.AlivePlayers() {
		if other.ID != p.ID {
			return other.ID
		}
	}
	return ""
}

func (r *Resolver) logViolation(p *Player, violation error) {
	r.state.appendLog(LogEntry{
		Type:       "rule_violation",
		PlayerID:   p.ID,
		Message:    violation.Error(),
		Visibility: VisibilityPrivate,
		Audience:   p.ID,
	})
}
