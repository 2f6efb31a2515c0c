package agents

// Emotion is the display emotion attached to an agent decision
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionSuspicious Emotion = "suspicious"
	EmotionDefensive  Emotion = "defensive"
	EmotionAggressive Emotion = "aggressive"
	EmotionConfident  Emotion = "confident"
)

// Emotions lists every recognized emotion value
var Emotions = []Emotion{
	EmotionNeutral,
	EmotionSuspicious,
	EmotionDefensive,
	EmotionAggressive,
	EmotionConfident,
}

// KnownEmotion reports whether e is a recognized emotion value
func KnownEmotion(e Emotion) bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// Decision is one validated agent turn. It is built fresh per turn by
// ParseDecision and lives only until its log entry is written.
type Decision struct {
	Target         string   `json:"target,omitempty"`
	Message        string   `json:"message,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Confidence     float64  `json:"confidence"`
	Emotion        Emotion  `json:"emotion"`
	Suspiciousness *float64 `json:"suspiciousness,omitempty"`
	Persuasiveness *float64 `json:"persuasiveness,omitempty"`
	Priority       *float64 `json:"priority,omitempty"`
}

// clamp01 clamps a score into [0.0, 1.0]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
