package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRuling(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		commentary string
		risk       string
		quality    string
		score      int
	}{
		{
			name:       "trailing object",
			text:       "The facilitator stayed calm.\n{\"risk\":\"Low\",\"quality\":\"good\",\"score\":8}",
			commentary: "The facilitator stayed calm.",
			risk:       "low", quality: "good", score: 8,
		},
		{
			name:       "fenced block",
			text:       "Missed cues twice.\n```json\n{\"risk\": \"high\", \"quality\": \"poor\", \"score\": 2}\n```",
			commentary: "Missed cues twice.",
			risk:       "high", quality: "poor", score: 2,
		},
		{
			name:       "no json",
			text:       "  Could not decide.  ",
			commentary: "Could not decide.",
			risk:       "unknown", quality: "unknown",
		},
		{
			name:       "unrelated braces then verdict",
			text:       "Used {reflection} well. {\"note\":1} then {\"score\": 6}",
			commentary: "Used {reflection} well. {\"note\":1} then",
			risk:       "unknown", quality: "unknown", score: 6,
		},
		{
			name:       "nested object",
			text:       "ok {\"risk\":\"medium\",\"quality\":\"fair\",\"score\":5,\"detail\":{\"x\":1}}",
			commentary: "ok",
			risk:       "medium", quality: "fair", score: 5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, v := ParseRuling(tc.text)
			assert.Equal(t, tc.commentary, c)
			assert.Equal(t, tc.risk, v.Risk)
			assert.Equal(t, tc.quality, v.Quality)
			assert.Equal(t, tc.score, v.Score)
		})
	}
}
