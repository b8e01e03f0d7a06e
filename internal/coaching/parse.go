package coaching

import (
	"encoding/json"
	"strings"
)

// Feedback is the model's coaching report.
type Feedback struct {
	Delivery []string `json:"delivery"`
	Content  []string `json:"content"`
}

// FallbackFeedback is returned whenever the model output cannot be parsed.
func FallbackFeedback() Feedback {
	return Feedback{
		Delivery: []string{
			"Practice maintaining a steady pace throughout your speech",
			"Consider varying your tone to emphasize key points",
			"Work on reducing hesitation and building confidence",
		},
		Content: []string{
			"Your main points could be more clearly structured",
			"Consider adding specific examples to support your ideas",
			"Try to maintain focus on your central message",
		},
	}
}

// ParseFeedback reads a Feedback from raw model output. It tries the whole
// text as JSON, then the first balanced {...} object inside it. ok is false
// when neither yields a report with both lists non-empty.
func ParseFeedback(raw string) (fb Feedback, ok bool) {
	raw = strings.TrimSpace(raw)
	if fb, ok = decodeFeedback(raw); ok {
		return fb, true
	}
	if obj, found := firstObject(raw); found {
		if fb, ok = decodeFeedback(obj); ok {
			return fb, true
		}
	}
	return Feedback{}, false
}

func decodeFeedback(s string) (Feedback, bool) {
	var fb Feedback
	if err := json.Unmarshal([]byte(s), &fb); err != nil {
		return Feedback{}, false
	}
	fb.Delivery = compact(fb.Delivery)
	fb.Content = compact(fb.Content)
	if len(fb.Delivery) == 0 || len(fb.Content) == 0 {
		return Feedback{}, false
	}
	return fb, true
}

func compact(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstObject returns the first brace-balanced object in s, skipping braces
// that appear inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
