package router

import (
	"context"
	"errors"
	"regexp"
	"strings"

	decimalpkg "github.com/opsline/ticketbroker/pkg/decimal"
)

// Transformer is the pluggable, potentially-unreliable scoring model the
// breaker protects calls to. A real deployment would swap in an HTTP or
// gRPC client to an inference service; tests and local runs use the
// deterministic stub below.
type Transformer interface {
	Score(ctx context.Context, text string) (float64, error)
}

var urgentPattern = regexp.MustCompile(`(?i)urgent|asap|immediately|critical|down|outage|emergency`)

// BaselineScore is the degraded-mode fallback used whenever the breaker is
// open or a probe fails: empty text scores 0, text matching an urgency
// keyword scores 0.85, anything else scores 0.25.
func BaselineScore(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.0
	}
	if urgentPattern.MatchString(text) {
		return 0.85
	}
	return 0.25
}

// StubTransformer is a deterministic keyword-weighted scorer standing in
// for a real ML model. ShouldFail lets tests force probe/closed-path
// failures without a real backend.
type StubTransformer struct {
	ShouldFail func(text string) bool
}

var errTransformerUnavailable = errors.New("transformer backend unavailable")

func (t *StubTransformer) Score(ctx context.Context, text string) (float64, error) {
	if t.ShouldFail != nil && t.ShouldFail(text) {
		return 0, errTransformerUnavailable
	}

	base := BaselineScore(text)
	// The "real" model nudges the baseline score to look less binary,
	// simulating a continuous-output transformer rather than the
	// three-bucket baseline heuristic.
	adjusted := base
	if strings.Contains(strings.ToLower(text), "please") {
		adjusted -= 0.05
	}
	return decimalpkg.ClampRound(adjusted, 0.0, 1.0, 6), nil
}
