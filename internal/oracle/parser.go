package oracle

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/TobiSchelling/leadscout/internal/llm"
)

// ErrNoVerdict means the response held no JSON object.
var ErrNoVerdict = errors.New("no JSON object in scoring response")

const (
	maxConfidence = 100
	maxScore      = 10
)

// ParseVerdict extracts a Verdict from raw oracle text. Code fences and
// surrounding prose are tolerated. Fields are coerced rather than trusted:
//
//   - is_relevant accepts booleans and yes/no/true/false strings; anything
//     else leaves it unknown.
//   - confidence and score accept numbers or numeric strings. NaN, infinities,
//     garbage and values outside 0-100 and 0-10 become 0.
//   - without a usable is_relevant the score is 0.
//   - key_matches and concerns keep trimmed, non-empty, distinct strings.
//
// When no JSON object can be found ErrNoVerdict is returned.
func ParseVerdict(text string) (Verdict, error) {
	raw, ok := llm.FirstJSON(text, '{')
	if !ok {
		return Verdict{}, ErrNoVerdict
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Verdict{}, ErrNoVerdict
	}

	v := Verdict{
		IsRelevant: getBool(m, "is_relevant"),
		Confidence: int(math.Round(getNumber(m, "confidence", maxConfidence))),
		Score:      getNumber(m, "score", maxScore),
		Reasoning:  strings.TrimSpace(getString(m, "reasoning")),
		KeyMatches: getStringSet(m, "key_matches"),
		Concerns:   getStringSet(m, "concerns"),
	}
	if v.IsRelevant == nil {
		v.Score = 0
	}
	return v, nil
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getBool(m map[string]any, key string) *bool {
	var b bool
	switch v := m[key].(type) {
	case bool:
		b = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "relevant":
			b = true
		case "false", "no", "not relevant", "irrelevant":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

// getNumber reads a number in [0, upper]; anything else is 0.
func getNumber(m map[string]any, key string, upper float64) float64 {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 || f > upper {
		return 0
	}
	return f
}

func getStringSet(m map[string]any, key string) []string {
	var items []any
	switch v := m[key].(type) {
	case []any:
		items = v
	case string:
		items = []any{v}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// parseIDs reads the relevant-post IDs from a JSON array or an object with
// a relevant_ids array. Non-integer entries are skipped; ok is false when
// neither shape is present.
func parseIDs(text string) (ids []int, ok bool) {
	raw, found := llm.FirstJSON(text, '{', '[')
	if !found {
		return nil, false
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		if list, ok = obj["relevant_ids"].([]any); !ok {
			return nil, false
		}
	}

	for _, item := range list {
		var f float64
		switch v := item.(type) {
		case float64:
			f = v
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				continue
			}
			f = float64(parsed)
		default:
			continue
		}
		if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
			continue
		}
		ids = append(ids, int(f))
	}
	return ids, true
}
