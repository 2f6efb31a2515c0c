package agents

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestParseDirectObject tests a bare well-formed JSON payload
func TestParseDirectObject(t *testing.T) {
	payload := `{"target": "p2", "reasoning": "quiet all game", "confidence": 0.8, "emotion": "suspicious"}`
	dec, err := ParseDecision(payload, []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Target != "p2" {
		t.Errorf("Expected target 'p2', got '%s'", dec.Target)
	}
	if dec.Confidence != 0.8 {
		t.Errorf("Expected confidence 0.8, got %v", dec.Confidence)
	}
	if dec.Emotion != EmotionSuspicious {
		t.Errorf("Expected emotion suspicious, got '%s'", dec.Emotion)
	}
}

// TestParseEnvelopeShapes tests that every supported wrapper shape recovers
// the same decision from the same underlying content
func TestParseEnvelopeShapes(t *testing.T) {
	inner := `{"target": "p3", "reasoning": "defended the accused", "confidence": 0.7}`
	quoted, _ := json.Marshal(inner)

	payloads := map[string]string{
		"plain":         inner,
		"content":       `{"content": ` + string(quoted) + `}`,
		"message":       `{"message": {"role": "assistant", "content": ` + string(quoted) + `}}`,
		"choices":       `{"choices": [{"message": {"role": "assistant", "content": ` + string(quoted) + `}}]}`,
		"fenced":        "```json\n" + inner + "\n```",
		"fenced plain":  "```\n" + inner + "\n```",
		"escaped":       string(quoted),
		"leading prose": "Here is my decision:\n" + inner,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			dec, err := ParseDecision(payload, []string{"p1", "p2", "p3"})
			if err != nil {
				t.Fatalf("ParseDecision failed: %v", err)
			}
			if dec.Target != "p3" {
				t.Errorf("Expected target 'p3', got '%s'", dec.Target)
			}
			if dec.Reasoning != "defended the accused" {
				t.Errorf("Unexpected reasoning: %s", dec.Reasoning)
			}
			if dec.Confidence != 0.7 {
				t.Errorf("Expected confidence 0.7, got %v", dec.Confidence)
			}
		})
	}
}

// TestParseFencedWithClamping covers the fenced, numeric-target,
// out-of-range end-to-end example
func TestParseFencedWithClamping(t *testing.T) {
	payload := "```json\n{\"target\": \"3\", \"reasoning\": \"x\", \"confidence\": 1.5}\n```"
	dec, err := ParseDecision(payload, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Target != "3" {
		t.Errorf("Expected target '3', got '%s'", dec.Target)
	}
	if dec.Reasoning != "x" {
		t.Errorf("Expected reasoning 'x', got '%s'", dec.Reasoning)
	}
	if dec.Confidence != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %v", dec.Confidence)
	}
	if dec.Emotion != EmotionNeutral {
		t.Errorf("Expected default emotion neutral, got '%s'", dec.Emotion)
	}
}

// TestNumericTargetCoercion tests that a numerically encoded target becomes
// a string, never a number
func TestNumericTargetCoercion(t *testing.T) {
	dec, err := ParseDecision(`{"target": 3, "confidence": 0.5}`, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Target != "3" {
		t.Errorf("Expected string target '3', got '%s'", dec.Target)
	}
}

// TestActionFieldFallback tests that action is accepted in place of target
func TestActionFieldFallback(t *testing.T) {
	dec, err := ParseDecision(`{"action": "skip"}`, []string{"poison_p4", "skip"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Target != "skip" {
		t.Errorf("Expected target 'skip', got '%s'", dec.Target)
	}
}

// TestOutOfVocabularyTarget tests the validation failure path
func TestOutOfVocabularyTarget(t *testing.T) {
	_, err := ParseDecision(`{"target": "p9"}`, []string{"p1", "p2"})
	if err == nil {
		t.Fatal("Expected validation failure for out-of-vocabulary target")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if verr.Value != "p9" {
		t.Errorf("Expected offending value 'p9', got '%s'", verr.Value)
	}
}

// TestScoreClamping tests that every score lands in [0,1] for any numeric
// input including negatives
func TestScoreClamping(t *testing.T) {
	payload := `{"target": "p1", "confidence": -2.5, "suspiciousness": 7, "persuasiveness": -0.1, "priority": 0.4}`
	dec, err := ParseDecision(payload, []string{"p1"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Confidence != 0 {
		t.Errorf("Expected confidence clamped to 0, got %v", dec.Confidence)
	}
	if dec.Suspiciousness == nil || *dec.Suspiciousness != 1 {
		t.Errorf("Expected suspiciousness clamped to 1, got %v", dec.Suspiciousness)
	}
	if dec.Persuasiveness == nil || *dec.Persuasiveness != 0 {
		t.Errorf("Expected persuasiveness clamped to 0, got %v", dec.Persuasiveness)
	}
	if dec.Priority == nil || *dec.Priority != 0.4 {
		t.Errorf("Expected priority 0.4, got %v", dec.Priority)
	}
}

// TestDefaultsWhenAbsent tests confidence/emotion defaults and absent
// optional fields staying absent
func TestDefaultsWhenAbsent(t *testing.T) {
	dec, err := ParseDecision(`{"target": "p1"}`, []string{"p1"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Confidence != 0.5 {
		t.Errorf("Expected default confidence 0.5, got %v", dec.Confidence)
	}
	if dec.Emotion != EmotionNeutral {
		t.Errorf("Expected default emotion neutral, got '%s'", dec.Emotion)
	}
	if dec.Suspiciousness != nil || dec.Persuasiveness != nil || dec.Priority != nil {
		t.Error("Expected optional scores to stay absent")
	}
	if dec.Reasoning != "" || dec.Message != "" {
		t.Error("Expected reasoning and message to stay absent")
	}
}

// TestUnknownEmotionDefaults tests unrecognized emotion values
func TestUnknownEmotionDefaults(t *testing.T) {
	dec, err := ParseDecision(`{"target": "p1", "emotion": "ecstatic"}`, []string{"p1"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Emotion != EmotionNeutral {
		t.Errorf("Expected neutral for unknown emotion, got '%s'", dec.Emotion)
	}
}

// TestTextFormatFallback covers the witch KEY: value example
func TestTextFormatFallback(t *testing.T) {
	payload := "TARGET: save_p7\nCONFIDENCE: 0.9"
	dec, err := ParseDecision(payload, []string{"save_p7", "skip"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Target != "save_p7" {
		t.Errorf("Expected target 'save_p7', got '%s'", dec.Target)
	}
	if dec.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %v", dec.Confidence)
	}
}

// TestTextFormatTrailingID tests extraction of a trailing (id) from a
// TARGET: line naming a player
func TestTextFormatTrailingID(t *testing.T) {
	payload := "TARGET: Alice (p3)\nREASONING: she contradicted herself\nEMOTION: aggressive"
	dec, err := ParseDecision(payload, []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if dec.Target != "p3" {
		t.Errorf("Expected target 'p3', got '%s'", dec.Target)
	}
	if dec.Reasoning != "she contradicted herself" {
		t.Errorf("Unexpected reasoning: %s", dec.Reasoning)
	}
	if dec.Emotion != EmotionAggressive {
		t.Errorf("Expected emotion aggressive, got '%s'", dec.Emotion)
	}
}

// TestParseExhaustion tests that a hopeless payload yields a ParseError
// carrying the strategy chain
func TestParseExhaustion(t *testing.T) {
	_, err := ParseDecision("I have no idea what to do here.", []string{"p1"})
	if err == nil {
		t.Fatal("Expected parse failure")
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %T", err)
	}
	if len(perr.Attempts) == 0 {
		t.Error("Expected the failure chain to be recorded")
	}
}

// TestParseIdempotence tests that re-parsing a validated decision yields an
// identical decision
func TestParseIdempotence(t *testing.T) {
	payload := `{"target": "p2", "message": "I vote p2", "reasoning": "voting record", "confidence": 0.65, "emotion": "confident", "priority": 0.9}`
	first, err := ParseDecision(payload, []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}

	reserialized, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	second, err := ParseDecision(string(reserialized), []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}

	if *second.Priority != *first.Priority {
		t.Errorf("priority changed across re-parse: %v != %v", *second.Priority, *first.Priority)
	}
	second.Priority = first.Priority
	if *first != *second {
		t.Errorf("decision changed across re-parse: %+v != %+v", first, second)
	}
}

// TestEmptyVocabularyDiscussion tests that discussion turns carry no target
// requirement
func TestEmptyVocabularyDiscussion(t *testing.T) {
	payload := `{"message": "I was home all night", "reasoning": "alibi", "confidence": 0.6}`
	dec, err := ParseDecision(payload, nil)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Message != "I was home all night" {
		t.Errorf("Unexpected message: %s", dec.Message)
	}
}
