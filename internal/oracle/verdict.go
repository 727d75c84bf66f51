package oracle

import (
	"fmt"
	"strings"
)

// Verdict is the graded relevance judgement for one company.
type Verdict struct {
	// IsRelevant is nil when the oracle could not decide.
	IsRelevant *bool    `json:"is_relevant"`
	Confidence int      `json:"confidence"`
	Score      float64  `json:"score"`
	Reasoning  string   `json:"reasoning"`
	KeyMatches []string `json:"key_matches,omitempty"`
	Concerns   []string `json:"concerns,omitempty"`
}

// Known reports whether the verdict carries a decision. Unknown verdicts
// score 0 but do not mean the company is irrelevant.
func (v Verdict) Known() bool {
	return v.IsRelevant != nil
}

// Unknown builds the verdict returned when scoring could not complete.
func Unknown(reason string) Verdict {
	return Verdict{Reasoning: reason}
}

// TopicMatch is the binary topic-match decision.
type TopicMatch int

const (
	MatchUnknown TopicMatch = iota
	MatchYes
	MatchNo
)

func (m TopicMatch) String() string {
	switch m {
	case MatchYes:
		return "yes"
	case MatchNo:
		return "no"
	default:
		return "unknown"
	}
}

func (m TopicMatch) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *TopicMatch) UnmarshalText(b []byte) error {
	match, err := ParseTopicMatch(string(b))
	if err != nil {
		return err
	}
	*m = match
	return nil
}

// ParseTopicMatch is the inverse of TopicMatch.String.
func ParseTopicMatch(s string) (TopicMatch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return MatchYes, nil
	case "no":
		return MatchNo, nil
	case "", "unknown":
		return MatchUnknown, nil
	default:
		return MatchUnknown, fmt.Errorf("unknown topic match %q", s)
	}
}
