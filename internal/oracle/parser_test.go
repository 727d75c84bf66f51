package oracle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdictWellFormed(t *testing.T) {
	v, err := ParseVerdict(`{
		"is_relevant": true,
		"confidence": 85,
		"score": 8.5,
		"reasoning": "Runs Kubernetes clusters for clients.",
		"key_matches": ["Kubernetes", "AWS", "kubernetes", "", 42],
		"concerns": []
	}`)
	require.NoError(t, err)

	require.NotNil(t, v.IsRelevant)
	assert.True(t, *v.IsRelevant)
	assert.True(t, v.Known())
	assert.Equal(t, 85, v.Confidence)
	assert.Equal(t, 8.5, v.Score)
	assert.Equal(t, "Runs Kubernetes clusters for clients.", v.Reasoning)
	assert.Equal(t, []string{"Kubernetes", "AWS"}, v.KeyMatches)
	assert.Empty(t, v.Concerns)
}

func TestParseVerdictFencedAndProse(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"is_relevant\": false, \"score\": 1}\n```",
		"Here is my answer:\n{\"is_relevant\": false, \"score\": 1}\nLet me know.",
	} {
		v, err := ParseVerdict(text)
		require.NoError(t, err, text)
		require.NotNil(t, v.IsRelevant)
		assert.False(t, *v.IsRelevant)
		assert.Equal(t, 1.0, v.Score)
	}
}

func TestParseVerdictCoercion(t *testing.T) {
	v, err := ParseVerdict(`{"is_relevant": "Yes", "confidence": "72%", "score": "6.5", "key_matches": "DevOps"}`)
	require.NoError(t, err)
	require.NotNil(t, v.IsRelevant)
	assert.True(t, *v.IsRelevant)
	assert.Equal(t, 72, v.Confidence)
	assert.Equal(t, 6.5, v.Score)
	assert.Equal(t, []string{"DevOps"}, v.KeyMatches)

	v, err = ParseVerdict(`{"is_relevant": "maybe", "confidence": "high", "score": null}`)
	require.NoError(t, err)
	assert.Nil(t, v.IsRelevant)
	assert.False(t, v.Known())
	assert.Zero(t, v.Confidence)
	assert.Zero(t, v.Score)
}

func TestParseVerdictOutOfRangeIsZero(t *testing.T) {
	v, err := ParseVerdict(`{"is_relevant": true, "confidence": 250, "score": 85}`)
	require.NoError(t, err)
	assert.Zero(t, v.Confidence)
	assert.Zero(t, v.Score)

	v, err = ParseVerdict(`{"is_relevant": true, "confidence": 100, "score": 10}`)
	require.NoError(t, err)
	assert.Equal(t, 100, v.Confidence)
	assert.Equal(t, 10.0, v.Score)

	v, err = ParseVerdict(`{"is_relevant": false, "confidence": -5, "score": -1}`)
	require.NoError(t, err)
	assert.Zero(t, v.Confidence)
	assert.Zero(t, v.Score)

	v, err = ParseVerdict(`{"is_relevant": true, "score": "NaN", "confidence": "Inf"}`)
	require.NoError(t, err)
	assert.Zero(t, v.Score)
	assert.Zero(t, v.Confidence)
}

func TestParseVerdictScoreWithoutRelevance(t *testing.T) {
	v, err := ParseVerdict(`{"score": 8, "confidence": 70}`)
	require.NoError(t, err)
	assert.False(t, v.Known())
	assert.Zero(t, v.Score)
	assert.Equal(t, 70, v.Confidence)
}

func TestParseVerdictGarbage(t *testing.T) {
	for _, text := range []string{
		"",
		"I cannot help with that.",
		`{"is_relevant": true, "score": 9`,
		"[1, 2, 3]",
	} {
		_, err := ParseVerdict(text)
		assert.ErrorIs(t, err, ErrNoVerdict, text)
	}
}

func TestParseIDs(t *testing.T) {
	ids, ok := parseIDs("[1, 3, 7]")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 3, 7}, ids)

	ids, ok = parseIDs(`Sure: {"relevant_ids": [2, "4", 5.5, -1, "x"]}`)
	assert.True(t, ok)
	assert.Equal(t, []int{2, 4}, ids)

	ids, ok = parseIDs("[]")
	assert.True(t, ok)
	assert.Empty(t, ids)

	_, ok = parseIDs("none of them")
	assert.False(t, ok)

	_, ok = parseIDs(`{"ids": [1]}`)
	assert.False(t, ok)
}

func FuzzParseVerdict(f *testing.F) {
	for _, seed := range []string{
		`{"is_relevant": true, "confidence": 90, "score": 9, "reasoning": "fit", "key_matches": ["a"], "concerns": ["b"]}`,
		"```json\n{\"score\": \"7\"}\n```",
		`{"score": 1e308, "confidence": -1e308}`,
		`{"is_relevant": "no", "key_matches": [1, null, {"x": 1}]}`,
		`{"score": 5`,
		"garbage {{{ ]]] }",
		"",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, text string) {
		v, err := ParseVerdict(text)
		if err != nil {
			return
		}
		if v.Score < 0 || v.Score > maxScore || math.IsNaN(v.Score) {
			t.Fatalf("score out of range: %v", v.Score)
		}
		if v.Confidence < 0 || v.Confidence > maxConfidence {
			t.Fatalf("confidence out of range: %v", v.Confidence)
		}
		seen := map[string]bool{}
		for _, m := range v.KeyMatches {
			if m == "" || seen[m] {
				t.Fatalf("key matches not a set of non-empty strings: %q", v.KeyMatches)
			}
			seen[m] = true
		}
	})
}
