package dialogue

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/persona"
)

// ParseResult pulls the structured dialogue payload out of raw model
// output. Models wrap JSON in fences or chatter around it often enough that
// we scan for the first balanced object instead of unmarshaling directly.
func ParseResult(raw string) (core.GenerationResult, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return core.GenerationResult{}, fmt.Errorf("%w: no JSON object in output", core.ErrInvalidResponse)
	}

	var payload struct {
		Utterance  string  `json:"utterance"`
		Monologue  string  `json:"monologue"`
		RumorDelta float64 `json:"rumor_delta"`
		Sentiment  string  `json:"sentiment"`
		NewMemory  string  `json:"new_memory"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return core.GenerationResult{}, fmt.Errorf("%w: %v", core.ErrInvalidResponse, err)
	}

	if strings.TrimSpace(payload.Utterance) == "" {
		return core.GenerationResult{}, fmt.Errorf("%w: empty utterance", core.ErrInvalidResponse)
	}
	if math.IsNaN(payload.RumorDelta) || math.IsInf(payload.RumorDelta, 0) || payload.RumorDelta < 0 || payload.RumorDelta > 1 {
		return core.GenerationResult{}, fmt.Errorf("%w: rumor_delta %f out of range", core.ErrInvalidResponse, payload.RumorDelta)
	}

	return core.GenerationResult{
		Utterance:  strings.TrimSpace(payload.Utterance),
		Monologue:  strings.TrimSpace(payload.Monologue),
		RumorDelta: payload.RumorDelta,
		NewMemory:  strings.TrimSpace(payload.NewMemory),
		Sentiment:  normalizeSentiment(payload.Sentiment),
	}, nil
}

// extractJSONObject returns the first balanced top-level object in s,
// respecting strings and escapes.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// normalizeSentiment folds free-form sentiment labels onto the three the
// mood ladder understands. Unknown labels read as mild concern.
func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case persona.SentimentUrgent, "explosive", "alarmed", "panicked":
		return persona.SentimentUrgent
	case persona.SentimentTense, "conspiratorial", "suspicious", "anxious", "defiant":
		return persona.SentimentTense
	default:
		return persona.SentimentWorried
	}
}
