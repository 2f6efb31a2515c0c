package game

import "time"

// EventType labels the events the machine emits for UI collaborators.
type EventType string

const (
	EventPhaseChanged EventType = "phase_changed"
	EventSpeech       EventType = "speech"
	EventVoteCast     EventType = "vote_cast"
	EventDecision     EventType = "decision"
	EventElimination  EventType = "elimination"
	EventGameOver     EventType = "game_over"
)

// Event is one emitted game event. Private events carry the audience seat
// and must only be delivered to that seat's clients.
type Event struct {
	GameID     string                 `json:"game_id"`
	Type       EventType              `json:"type"`
	Round      int                    `json:"round"`
	Phase      Phase                  `json:"phase"`
	PlayerID   string                 `json:"player_id,omitempty"`
	Visibility Visibility             `json:"visibility"`
	Audience   string                 `json:"audience,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// EventSink consumes machine events (websocket hub, persistence, tests).
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to an EventSink.
type SinkFunc func(Event)

// Emit implements EventSink.
func (f SinkFunc) Emit(e Event) {
	f(e)
}

// multiSink fans one event out to several sinks in order.
type multiSink []EventSink

func (m multiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// CombineSinks builds a sink delivering to all given sinks. Nil entries are
// dropped; a nil result means no listeners.
func CombineSinks(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
