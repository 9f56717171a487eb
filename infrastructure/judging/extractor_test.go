package judging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantScore float64
		wantOK    bool
	}{
		{name: "slash ten", text: "Score: 8.5/10", wantScore: 8.5, wantOK: true},
		{name: "slash ten with spaces", text: "I rate it 7 / 10 overall", wantScore: 7, wantOK: true},
		{name: "score label", text: "Final score: 6", wantScore: 6, wantOK: true},
		{name: "rating label", text: "RATING 9.5 for clarity", wantScore: 9.5, wantOK: true},
		{name: "out of ten", text: "easily 9 out of 10", wantScore: 9, wantOK: true},
		{name: "bare single digit", text: "I'd say 4, honestly.", wantScore: 4, wantOK: true},
		{name: "no numbers", text: "no numbers here", wantOK: false},
		{name: "out of range only", text: "I'd give this a 12", wantOK: false},
		{
			name:      "out of range match falls through to later pattern",
			text:      "score: 42 but really a 7",
			wantScore: 7,
			wantOK:    true,
		},
		{
			name:      "first pattern with a match wins over later ones",
			text:      "rating: 3, overall 8/10",
			wantScore: 8,
			wantOK:    true,
		},
		{name: "full width digits are normalised", text: "Score: ８/10", wantScore: 8, wantOK: true},
		{name: "ten is accepted", text: "10", wantScore: 10, wantOK: true},
		{name: "zero is accepted", text: "score: 0", wantScore: 0, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := ExtractScore(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantScore, score, 1e-9)
			}
		})
	}
}
