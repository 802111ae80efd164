// Package router implements the Model Router: a circuit breaker guarding
// calls to the (unreliable) urgency-scoring transformer, with state shared
// across worker processes via Redis rather than kept in-process. This is
// deliberately a different breaker from pkg/circuit — that one is an
// in-process atomic/mutex state machine used by the gateway to guard its
// own publish calls; the Model Router's breaker must be visible to every
// worker in the pool, so its state lives in Redis keys instead.
package router

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/store"
)

const (
	keyState    = "circuit_breaker:state"
	keyOpenedAt = "circuit_breaker:opened_at"
	keyProbes   = "circuit_breaker:probes"
	keyFailures = "circuit_breaker:failures"

	// failureThreshold is the number of consecutive closed-state failures
	// that trip the breaker open.
	failureThreshold = 3
)

// Router scores ticket urgency through a transformer protected by a
// Redis-shared circuit breaker.
type Router struct {
	store           *store.Store
	transformer     Transformer
	cooldown        time.Duration
	halfOpenProbes  int
}

// New builds a Router. cooldownSeconds and halfOpenProbes come from
// CIRCUIT_COOLDOWN_SECONDS / CIRCUIT_HALF_OPEN_PROBES.
func New(s *store.Store, transformer Transformer, cooldownSeconds, halfOpenProbes int) *Router {
	return &Router{
		store:          s,
		transformer:    transformer,
		cooldown:       time.Duration(cooldownSeconds) * time.Second,
		halfOpenProbes: halfOpenProbes,
	}
}

// ScoreUrgency returns the urgency score S in [0,1] for a ticket's text.
// It mirrors the reference model router's state machine: open skips the
// transformer entirely and returns the baseline score; half-open allows
// exactly one probe per call, promoting to closed after enough successful
// probes; closed is the fallthrough case that always attempts the
// transformer, demoting to open after too many consecutive failures.
func (r *Router) ScoreUrgency(ctx context.Context, text string) (float64, error) {
	state, err := r.getState(ctx)
	if err != nil {
		return 0, fmt.Errorf("read circuit state: %w", err)
	}

	switch state {
	case models.CircuitOpen:
		openedAt, err := r.getOpenedAt(ctx)
		if err != nil {
			return 0, err
		}
		if time.Since(openedAt) < r.cooldown {
			return BaselineScore(text), nil
		}
		if err := r.transition(ctx, models.CircuitHalfOpen); err != nil {
			return 0, err
		}
		return r.probeHalfOpen(ctx, text)

	case models.CircuitHalfOpen:
		return r.probeHalfOpen(ctx, text)
	}

	// Closed is the unconditional fallthrough: always attempt the
	// transformer, regardless of how we got here.
	return r.attemptClosed(ctx, text)
}

func (r *Router) probeHalfOpen(ctx context.Context, text string) (float64, error) {
	score, err := r.transformer.Score(ctx, text)
	if err != nil {
		if err := r.openCircuit(ctx); err != nil {
			return 0, err
		}
		return BaselineScore(text), nil
	}

	probes, err := r.store.Client().Incr(ctx, keyProbes).Result()
	if err != nil {
		return 0, fmt.Errorf("incr probes: %w", err)
	}
	if int(probes) >= r.halfOpenProbes {
		if err := r.closeCircuit(ctx); err != nil {
			return 0, err
		}
	}
	return score, nil
}

func (r *Router) attemptClosed(ctx context.Context, text string) (float64, error) {
	score, err := r.transformer.Score(ctx, text)
	if err != nil {
		failures, incErr := r.store.Client().Incr(ctx, keyFailures).Result()
		if incErr != nil {
			return 0, fmt.Errorf("incr failures: %w", incErr)
		}
		if int(failures) >= failureThreshold {
			if err := r.openCircuit(ctx); err != nil {
				return 0, err
			}
		}
		return BaselineScore(text), nil
	}

	_ = r.store.Del(ctx, keyFailures)
	return score, nil
}

func (r *Router) openCircuit(ctx context.Context) error {
	if err := r.store.Set(ctx, keyOpenedAt, strconv.FormatInt(time.Now().Unix(), 10), 0); err != nil {
		return err
	}
	_ = r.store.Del(ctx, keyProbes, keyFailures)
	return r.transition(ctx, models.CircuitOpen)
}

func (r *Router) closeCircuit(ctx context.Context) error {
	_ = r.store.Del(ctx, keyProbes, keyFailures, keyOpenedAt)
	return r.transition(ctx, models.CircuitClosed)
}

func (r *Router) transition(ctx context.Context, state models.CircuitState) error {
	return r.store.Set(ctx, keyState, string(state), 0)
}

func (r *Router) getState(ctx context.Context) (models.CircuitState, error) {
	v, ok, err := r.store.Get(ctx, keyState)
	if err != nil {
		return "", err
	}
	if !ok {
		return models.CircuitClosed, nil
	}
	return models.CircuitState(v), nil
}

func (r *Router) getOpenedAt(ctx context.Context) (time.Time, error) {
	v, ok, err := r.store.Get(ctx, keyOpenedAt)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Now(), nil
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Now(), nil
	}
	return time.Unix(unix, 0), nil
}

// GetCircuitState returns a snapshot of the breaker for observability
// endpoints (GET /router/circuit).
func (r *Router) GetCircuitState(ctx context.Context) (models.CircuitStateSnapshot, error) {
	state, err := r.getState(ctx)
	if err != nil {
		return models.CircuitStateSnapshot{}, err
	}
	snap := models.CircuitStateSnapshot{State: state}

	if openedAtStr, ok, _ := r.store.Get(ctx, keyOpenedAt); ok {
		if unix, err := strconv.ParseInt(openedAtStr, 10, 64); err == nil {
			snap.OpenedAt = float64(unix)
		}
	}
	if probesStr, ok, _ := r.store.Get(ctx, keyProbes); ok {
		if n, err := strconv.Atoi(probesStr); err == nil {
			snap.HalfOpenProbes = n
		}
	}
	return snap, nil
}
