package game

import (
	"fmt"
	"strings"
)

// WitchSkip is the no-op option in the witch's action vocabulary.
const WitchSkip = "skip"

// LegalTargets computes the legal vocabulary for one seat and action kind,
// fresh from the current state: alive seats minus self-targeting and
// role-specific exclusions. The returned strings are the only values the
// parser will accept as target for this turn.
func LegalTargets(p *Player, s *State, kind ActionKind) []string {
	var vocab []string
	switch kind {
	case ActionKill:
		for _, other := range s.AlivePlayers() {
			if other.Camp() == CampGood {
				vocab = append(vocab, other.ID)
			}
		}
	case ActionCheck, ActionVote, ActionShoot:
		for _, other := range s.AlivePlayers() {
			if other.ID != p.ID {
				vocab = append(vocab, other.ID)
			}
		}
	case ActionGuard:
		// Self-guarding is allowed; repeating last night's target is not.
		for _, other := range s.AlivePlayers() {
			if other.ID != p.LastGuardedID {
				vocab = append(vocab, other.ID)
			}
		}
	case ActionSave:
		if s.PendingKill() != "" && !p.SaveUsed {
			vocab = append(vocab, "save_"+s.PendingKill())
		}
		vocab = append(vocab, WitchSkip)
	case ActionPoison:
		if !p.PoisonUsed {
			for _, other := range s.AlivePlayers() {
				if other.ID != p.ID {
					vocab = append(vocab, "poison_"+other.ID)
				}
			}
		}
		vocab = append(vocab, WitchSkip)
	case ActionDiscussion:
		// Free speech, no target vocabulary.
	}
	return vocab
}

// BuildPrompt renders the full prompt for one seat and action kind. It is a
// pure function of its inputs: identical state yields an identical prompt.
// The prompt includes the acting seat's own role, camp, and private
// knowledge; every other seat appears as id/name/status only.
func BuildPrompt(p *Player, s *State, kind ActionKind) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Werewolf game, round %d, phase %s.\n\n", s.Round, s.Phase)
	fmt.Fprintf(&b, "You are %s (id %s). Your role: %s. Your camp: %s.\n", p.Name, p.ID, p.Role, p.Camp())
	if tone := personalityTone(p.Personality); tone != "" {
		b.WriteString(tone)
		b.WriteString("\n")
	}

	writePrivateKnowledge(&b, p, s, kind)

	b.WriteString("\nPlayers at the table:\n")
	for _, other := range s.Players() {
		fmt.Fprintf(&b, "- id %s: %s [%s]\n", other.ID, other.Name, other.Status)
	}

	if kind == ActionDiscussion || kind == ActionVote {
		speeches := s.RoundSpeeches(s.Round)
		if len(speeches) > 0 {
			b.WriteString("\nStatements so far this round:\n")
			for _, sp := range speeches {
				fmt.Fprintf(&b, "- %s: %s\n", sp.PlayerID, sp.Message)
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(actionInstruction(kind))
	b.WriteString("\n")

	vocab := LegalTargets(p, s, kind)
	if len(vocab) > 0 {
		fmt.Fprintf(&b, "\nValid values for \"target\": %s\n", strings.Join(quoteAll(vocab), ", "))
	}

	writeSchemaInstruction(&b, kind, vocab)
	return b.String()
}

// writePrivateKnowledge adds what this seat alone is entitled to know.
func writePrivateKnowledge(b *strings.Builder, p *Player, s *State, kind ActionKind) {
	switch p.Role {
	case RoleSeer:
		if len(s.SeerResults) > 0 {
			b.WriteString("Your past investigations:\n")
			for _, r := range s.SeerResults {
				fmt.Fprintf(b, "- round %d: id %s belongs to the %s camp\n", r.Round, r.TargetID, r.Camp)
			}
		}
	case RoleWitch:
		fmt.Fprintf(b, "Save potion used: %t. Poison potion used: %t.\n", p.SaveUsed, p.PoisonUsed)
		if kind == ActionSave && s.PendingKill() != "" {
			fmt.Fprintf(b, "Tonight's victim: id %s. You may save them or do nothing.\n", s.PendingKill())
		}
	case RoleGuard:
		if p.LastGuardedID != "" {
			fmt.Fprintf(b, "Last night you protected id %s; you cannot protect them again tonight.\n", p.LastGuardedID)
		}
	}
}

// actionInstruction states the decision being asked for. Dispatch is an
// exhaustive switch over the closed action set.
func actionInstruction(kind ActionKind) string {
	switch kind {
	case ActionKill:
		return "Night action: choose one player to eliminate tonight."
	case ActionCheck:
		return "Night action: choose one player to investigate. You will privately learn which camp they belong to."
	case ActionSave:
		return "Night action: decide whether to use your save potion on tonight's victim, or skip."
	case ActionPoison:
		return "Night action: decide whether to use your poison potion on a player, or skip."
	case ActionGuard:
		return "Night action: choose one player to protect from tonight's attack."
	case ActionVote:
		return "Day vote: choose one player to eliminate by plurality vote."
	case ActionShoot:
		return "You have been eliminated. As your last act, choose one player to take down with you."
	case ActionDiscussion:
		return "Day discussion: make a public statement. Share suspicions, defend yourself, or mislead — whatever serves you."
	default:
		return ""
	}
}

// writeSchemaInstruction ends every prompt with the exact JSON contract the
// validator will enforce, restating the vocabulary verbatim.
func writeSchemaInstruction(b *strings.Builder, kind ActionKind, vocab []string) {
	b.WriteString("\nRespond with a single JSON object and nothing else. Fields:\n")
	if len(vocab) > 0 {
		fmt.Fprintf(b, "- \"target\" (required): exactly one of %s\n", strings.Join(quoteAll(vocab), ", "))
	}
	if kind == ActionDiscussion {
		b.WriteString("- \"message\" (required): what you say out loud to the table\n")
	} else {
		b.WriteString("- \"message\" (optional): what you say out loud, if anything\n")
	}
	b.WriteString("- \"reasoning\" (required): your private reasoning, never shown to other players\n")
	b.WriteString("- \"confidence\" (required): number from 0.0 to 1.0\n")
	b.WriteString("- \"emotion\" (optional): one of \"neutral\", \"suspicious\", \"defensive\", \"aggressive\", \"confident\"\n")
	b.WriteString("- \"suspiciousness\", \"persuasiveness\", \"priority\" (optional): numbers from 0.0 to 1.0\n")
}

// personalityTone maps the seat's style tag to a tone line. Tags shape
// phrasing only; they have no rule effect.
func personalityTone(tag string) string {
	switch tag {
	case "aggressive":
		return "Style: blunt and confrontational; press your suspicions hard."
	case "analytical":
		return "Style: methodical; argue from the voting record and stated facts."
	case "cautious":
		return "Style: reserved; commit only when the evidence is strong."
	case "deceptive":
		return "Style: misdirect; keep the table guessing about your intentions."
	case "":
		return ""
	default:
		return fmt.Sprintf("Style: %s.", tag)
	}
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}
