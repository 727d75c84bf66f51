package cache

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/TobiSchelling/leadscout/internal/oracle"
)

// EncodeVerdict serializes a verdict for storage; nil encodes as "".
func EncodeVerdict(v *oracle.Verdict) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding verdict: %w", err)
	}
	return string(b), nil
}

// DecodeVerdict is the inverse of EncodeVerdict.
func DecodeVerdict(s string) (*oracle.Verdict, error) {
	if s == "" {
		return nil, nil
	}
	var v oracle.Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decoding verdict: %w", err)
	}
	return &v, nil
}

func cloneVerdict(v *oracle.Verdict) *oracle.Verdict {
	if v == nil {
		return nil
	}
	c := *v
	if v.IsRelevant != nil {
		b := *v.IsRelevant
		c.IsRelevant = &b
	}
	c.KeyMatches = slices.Clone(v.KeyMatches)
	c.Concerns = slices.Clone(v.Concerns)
	return &c
}
