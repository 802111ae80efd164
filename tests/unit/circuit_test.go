package unit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/ticketbroker/pkg/circuit"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := circuit.NewBreaker(circuit.Config{
		Name:        "gateway-publish",
		MaxFailures: 3,
		Timeout:     50 * time.Millisecond,
		HalfOpenMax: 1,
	})

	failing := errors.New("publish failed")
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func() error { return failing })
		assert.ErrorIs(t, err, failing)
	}

	assert.Equal(t, circuit.StateOpen, b.State())

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, circuit.ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := circuit.NewBreaker(circuit.Config{
		Name:        "gateway-publish",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
		HalfOpenMax: 1,
	})

	boom := errors.New("boom")
	require.ErrorIs(t, b.Execute(context.Background(), func() error { return boom }), boom)
	assert.Equal(t, circuit.StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateClosed, b.State())
}

func TestBreakerForceOpenAndReset(t *testing.T) {
	b := circuit.NewBreaker(circuit.Config{Name: "x", MaxFailures: 5, Timeout: time.Second, HalfOpenMax: 1})

	b.ForceOpen()
	assert.Equal(t, circuit.StateOpen, b.State())

	b.Reset()
	assert.Equal(t, circuit.StateClosed, b.State())
}

func TestBreakerOnStateChangeCallback(t *testing.T) {
	var transitions []circuit.State
	var mu sync.Mutex

	b := circuit.NewBreaker(circuit.Config{
		Name:        "x",
		MaxFailures: 1,
		Timeout:     time.Second,
		HalfOpenMax: 1,
		OnStateChange: func(from, to circuit.State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, to)
		},
	})

	_ = b.Execute(context.Background(), func() error { return errors.New("fail") })

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, circuit.StateOpen, transitions[0])
}

func TestBreakerGroupIsolatesBreakersByName(t *testing.T) {
	group := circuit.NewBreakerGroup(circuit.Config{MaxFailures: 1, Timeout: time.Second, HalfOpenMax: 1})

	_ = group.Execute(context.Background(), "tickets", func() error { return errors.New("fail") })
	_ = group.Execute(context.Background(), "other", func() error { return nil })

	states := group.States()
	assert.Equal(t, circuit.StateOpen, states["tickets"])
	assert.Equal(t, circuit.StateClosed, states["other"])
}

func TestBreakerConcurrentExecuteIsSafe(t *testing.T) {
	b := circuit.NewBreaker(circuit.Config{Name: "stress", MaxFailures: 1000, Timeout: time.Second, HalfOpenMax: 5})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func() error { return nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, circuit.StateClosed, b.State())
}
