package game

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dxhuy/werewolf-agents/internal/agents"
)

// testState builds a night-phase state with seats p1..pN holding the given
// roles in order.
func testState(roles ...Role) *State {
	players := make([]*Player, len(roles))
	for i, role := range roles {
		id := fmt.Sprintf("p%d", i+1)
		players[i] = &Player{ID: id, Name: "Player " + id, Role: role, Status: StatusActive}
	}
	s := NewState("test-game", players)
	s.Phase = PhaseNight
	return s
}

func targetDecision(target string) *agents.Decision {
	return &agents.Decision{Target: target, Confidence: 0.8, Emotion: agents.EmotionNeutral}
}

// scriptedAgent answers every prompt through a policy function; a nil policy
// means every call fails with err.
type scriptedAgent struct {
	policy func(prompt string) string
	err    error
	calls  int
}

func (a *scriptedAgent) Complete(ctx context.Context, prompt string) (string, error) {
	a.calls++
	if a.policy == nil {
		return "", a.err
	}
	return a.policy(prompt), nil
}

var promptSeatRe = regexp.MustCompile(`\(id (p\d+)\)`)

// promptSeat extracts the acting seat id from a rendered prompt.
func promptSeat(prompt string) string {
	m := promptSeatRe.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// promptVocab extracts the legal target vocabulary restated in a prompt.
func promptVocab(prompt string) []string {
	const marker = `Valid values for "target": `
	idx := strings.Index(prompt, marker)
	if idx < 0 {
		return nil
	}
	line := prompt[idx+len(marker):]
	if end := strings.Index(line, "\n"); end >= 0 {
		line = line[:end]
	}
	var vocab []string
	for _, part := range strings.Split(line, ", ") {
		vocab = append(vocab, strings.Trim(part, `"`))
	}
	return vocab
}

func decisionJSON(target string) string {
	return fmt.Sprintf(`{"target": %q, "reasoning": "test", "confidence": 0.9}`, target)
}
