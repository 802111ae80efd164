package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsline/ticketbroker/pkg/decimal"
)

func TestScoreRounding(t *testing.T) {
	t.Run("should round to 6 decimal places", func(t *testing.T) {
		s := decimal.NewScore(0.123456789)
		assert.Equal(t, "0.123457", s.Round(6).String())
	})

	t.Run("should clamp to [-1, 1]", func(t *testing.T) {
		assert.Equal(t, 1.0, decimal.NewScore(1.5).Clamp(-1, 1).Float64())
		assert.Equal(t, -1.0, decimal.NewScore(-5).Clamp(-1, 1).Float64())
	})

	t.Run("should reject an invalid score string", func(t *testing.T) {
		_, err := decimal.NewScoreFromString("not-a-number")
		assert.Error(t, err)
	})
}

func TestClampRound(t *testing.T) {
	t.Run("clamps urgency score into [0,1] and rounds", func(t *testing.T) {
		assert.Equal(t, 1.0, decimal.ClampRound(1.2, 0, 1, 6))
		assert.Equal(t, 0.0, decimal.ClampRound(-0.3, 0, 1, 6))
		assert.Equal(t, 0.333333, decimal.ClampRound(1.0/3.0, 0, 1, 6))
	})
}

func TestRoundToPriority(t *testing.T) {
	cases := []struct {
		score float64
		want  int
	}{
		{0.0, 0},
		{0.04, 0},
		{0.06, 1},
		{0.5, 5},
		{0.95, 10},
		{1.0, 10},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, decimal.RoundToPriority(c.score))
	}
}
