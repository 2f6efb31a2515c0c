package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError means no decision object could be recovered from the payload by
// any strategy. Attempts holds the per-strategy failures in the order tried.
type ParseError struct {
	Attempts []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no decision recoverable from payload (%s)", strings.Join(e.Attempts, "; "))
}

// ValidationError means a recovered object failed validation against the
// legal vocabulary or the decision shape.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q not in legal vocabulary", e.Field, e.Value)
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
	trailingIDRe = regexp.MustCompile(`\(([A-Za-z0-9_-]+)\)\s*$`)
	textLineRe   = regexp.MustCompile(`(?i)^\s*(TARGET|ACTION|REASONING|CONFIDENCE|MESSAGE|EMOTION)\s*:\s*(.*)$`)
)

// strategy is one fallible transform from raw text to a JSON object.
// The chain short-circuits on the first strategy that yields an object.
type strategy struct {
	name string
	fn   func(string) (map[string]interface{}, error)
}

var strategies = []strategy{
	{"direct", parseDirect},
	{"fenced", parseFenced},
	{"braces", parseBraces},
	{"unquoted", parseUnquoted},
}

// ParseDecision converts a raw agent payload into a validated Decision.
// The payload may be a bare JSON object, any of the provider envelope shapes,
// markdown-fenced text, a JSON-escaped string, or line-oriented KEY: value
// text. vocab is the legal target vocabulary for this turn; a recovered
// target outside it is a ValidationError.
func ParseDecision(payload string, vocab []string) (*Decision, error) {
	content := unwrapEnvelopes(strings.TrimSpace(payload))

	var attempts []string
	for _, s := range strategies {
		obj, err := s.fn(content)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		return validateDecision(obj, vocab)
	}

	obj, err := parseTextFormat(content)
	if err != nil {
		attempts = append(attempts, fmt.Sprintf("text: %v", err))
		return nil, &ParseError{Attempts: attempts}
	}
	return validateDecision(obj, vocab)
}

// unwrapEnvelopes descends through known provider wrapper shapes
// ({choices:[{message:{content}}]}, {message:{content}}, {content}) until the
// innermost content string is reached. Non-envelope payloads pass through.
func unwrapEnvelopes(payload string) string {
	for depth := 0; depth < 4; depth++ {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			return payload
		}
		inner, ok := innerContent(obj)
		if !ok {
			return payload
		}
		payload = inner
	}
	return payload
}

func innerContent(obj map[string]interface{}) (string, bool) {
	if choices, ok := obj["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := choice["message"].(map[string]interface{}); ok {
				return contentField(msg)
			}
		}
		return "", false
	}
	// {message:{role,content}} only counts as an envelope when message is an
	// object; a decision carries message as a plain string.
	if msg, ok := obj["message"].(map[string]interface{}); ok {
		return contentField(msg)
	}
	if _, ok := obj["content"]; ok {
		return contentField(obj)
	}
	return "", false
}

func contentField(obj map[string]interface{}) (string, bool) {
	switch v := obj["content"].(type) {
	case string:
		return v, true
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}

func parseDirect(content string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseFenced(content string) (map[string]interface{}, error) {
	if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		return parseDirect(strings.TrimSpace(m[1]))
	}
	if m := fencedAnyRe.FindStringSubmatch(content); m != nil {
		return parseDirect(strings.TrimSpace(m[1]))
	}
	return nil, fmt.Errorf("no fenced block")
}

func parseBraces(content string) (map[string]interface{}, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no brace-delimited object")
	}
	return parseDirect(content[start : end+1])
}

// parseUnquoted handles a payload that is itself a JSON-encoded string
// (quotes and backslashes doubled): unescape once and retry the JSON
// strategies on the interior.
func parseUnquoted(content string) (map[string]interface{}, error) {
	var inner string
	if err := json.Unmarshal([]byte(content), &inner); err != nil {
		return nil, fmt.Errorf("not an escaped string")
	}
	if obj, err := parseDirect(inner); err == nil {
		return obj, nil
	}
	if obj, err := parseFenced(inner); err == nil {
		return obj, nil
	}
	return parseBraces(inner)
}

// parseTextFormat parses line-oriented KEY: value pairs. A TARGET: line that
// names a player rather than an id may carry the id in a trailing "(id)".
func parseTextFormat(content string) (map[string]interface{}, error) {
	obj := make(map[string]interface{})
	for _, line := range strings.Split(content, "\n") {
		m := textLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		switch key {
		case "target", "action":
			if idm := trailingIDRe.FindStringSubmatch(value); idm != nil {
				value = idm[1]
			}
			obj["target"] = value
		case "confidence":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				obj["confidence"] = f
			}
		case "reasoning", "message", "emotion":
			obj[key] = value
		}
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("no KEY: value lines found")
	}
	return obj, nil
}

// validateDecision applies uniform validation regardless of which strategy
// produced the object: string-typed target checked against the vocabulary,
// scores clamped into [0,1], emotion defaulted to neutral.
func validateDecision(obj map[string]interface{}, vocab []string) (*Decision, error) {
	dec := &Decision{
		Confidence: 0.5,
		Emotion:    EmotionNeutral,
	}

	target, hasTarget := scalarString(obj["target"])
	if !hasTarget {
		target, hasTarget = scalarString(obj["action"])
	}
	if hasTarget && target != "" {
		if len(vocab) > 0 && !vocabContains(vocab, target) {
			return nil, &ValidationError{Field: "target", Value: target}
		}
		dec.Target = target
	}

	if v, ok := scalarFloat(obj["confidence"]); ok {
		dec.Confidence = clamp01(v)
	}
	if v, ok := scalarFloat(obj["suspiciousness"]); ok {
		c := clamp01(v)
		dec.Suspiciousness = &c
	}
	if v, ok := scalarFloat(obj["persuasiveness"]); ok {
		c := clamp01(v)
		dec.Persuasiveness = &c
	}
	if v, ok := scalarFloat(obj["priority"]); ok {
		c := clamp01(v)
		dec.Priority = &c
	}

	if s, ok := obj["emotion"].(string); ok && KnownEmotion(Emotion(strings.ToLower(s))) {
		dec.Emotion = Emotion(strings.ToLower(s))
	}
	if s, ok := obj["reasoning"].(string); ok {
		dec.Reasoning = s
	}
	if s, ok := obj["message"].(string); ok {
		dec.Message = s
	}

	return dec, nil
}

// scalarString coerces a target-like value to a string. Numeric ids from
// JSON arrive as float64 and must become strings, never stay numbers.
func scalarString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return "", false
	}
}

func scalarFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func vocabContains(vocab []string, target string) bool {
	for _, v := range vocab {
		if v == target {
			return true
		}
	}
	return false
}
