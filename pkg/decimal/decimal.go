// Package decimal wraps shopspring/decimal for the fixed-precision scoring
// arithmetic the ticket broker needs: urgency scores, priority scores and
// cosine similarities must round deterministically the same way across
// workers, which naive float formatting does not guarantee at the edges.
package decimal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Score represents a bounded real value — urgency S or a cosine
// similarity — that needs deterministic rounding.
type Score struct {
	value decimal.Decimal
}

// NewScore builds a Score from a float64.
func NewScore(f float64) Score {
	return Score{value: decimal.NewFromFloat(f)}
}

// NewScoreFromString parses a Score from its string form.
func NewScoreFromString(s string) (Score, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Score{}, fmt.Errorf("invalid score: %w", err)
	}
	return Score{value: d}, nil
}

// Round rounds to the given number of decimal places.
func (s Score) Round(places int32) Score {
	return Score{value: s.value.Round(places)}
}

// Clamp restricts the score to [lo, hi].
func (s Score) Clamp(lo, hi float64) Score {
	v := s.value
	loD := decimal.NewFromFloat(lo)
	hiD := decimal.NewFromFloat(hi)
	if v.LessThan(loD) {
		v = loD
	}
	if v.GreaterThan(hiD) {
		v = hiD
	}
	return Score{value: v}
}

// Float64 returns the float64 representation.
func (s Score) Float64() float64 {
	f, _ := s.value.Float64()
	return f
}

// String returns the decimal string representation.
func (s Score) String() string {
	return s.value.String()
}

// Cmp compares two scores (-1, 0, 1).
func (s Score) Cmp(other Score) int {
	return s.value.Cmp(other.value)
}

// ClampRound clamps f to [lo, hi] and rounds to the given number of decimal
// places, returning a plain float64. Used for the urgency score (clamp to
// [0,1]) and cosine similarity (clamp to [-1,1], round to 6 places).
func ClampRound(f, lo, hi float64, places int32) float64 {
	return NewScore(f).Clamp(lo, hi).Round(places).Float64()
}

// RoundToPriority maps a continuous urgency score S in [0,1] to the integer
// priority_score in [0,10]: clamp(round(S*10), 0, 10).
func RoundToPriority(s float64) int {
	scaled := decimal.NewFromFloat(s * 10).Round(0)
	v, _ := scaled.Float64()
	n := int(v)
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
