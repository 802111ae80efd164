package chaos

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/ticketbroker/internal/activity"
	"github.com/opsline/ticketbroker/internal/agents"
	"github.com/opsline/ticketbroker/internal/dedup"
	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/pipeline"
	"github.com/opsline/ticketbroker/internal/queue"
	"github.com/opsline/ticketbroker/internal/router"
	"github.com/opsline/ticketbroker/internal/store"
	"github.com/opsline/ticketbroker/internal/webhook"
	"github.com/opsline/ticketbroker/pkg/circuit"
)

func TestStoreCallsFailAfterRedisGoesDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v", 0))

	// Simulate Redis disappearing mid-operation.
	mr.Close()

	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err, "reads after Redis goes down should surface an error, not silently return stale data")
}

func TestModelRouterBreakerSurvivesSustainedTransformerOutage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	transformer := &router.StubTransformer{ShouldFail: func(string) bool { return true }}
	r := router.New(s, transformer, 3600, 2)

	// Under a 30-call burst of total transformer outage, the breaker should
	// trip open well before the end and keep serving the baseline score
	// rather than propagating errors up to callers.
	for i := 0; i < 30; i++ {
		score, err := r.ScoreUrgency(ctx, "urgent system outage")
		require.NoError(t, err, "ScoreUrgency must never error out — baseline is always available")
		assert.InDelta(t, 0.85, score, 0.01)
	}

	snap, err := r.GetCircuitState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CircuitOpen, snap.State)
}

func TestWebhookNotifierSwallowsUnreachableEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	notifier := webhook.New("http://127.0.0.1:1/unreachable")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		notifier.TriggerHighUrgency(ctx, models.RoutedTicket{TicketID: "t-1", UrgencyScore: 0.95})
		notifier.TriggerMasterIncident(ctx, models.MasterIncident{IncidentID: "incident-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("webhook notifier did not return promptly against an unreachable endpoint")
	}
}

func TestPipelineBackpressureUnderTicketSpike(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	reg := agents.New(s)
	require.NoError(t, reg.SeedMockAgents(ctx))
	dedupEngine := dedup.New(s, nil, 60, 0.9, 1000) // effectively disabled for this test
	q := queue.New(s)
	bus := activity.New(s)
	modelRouter := router.New(s, &router.StubTransformer{}, 30, 2)
	wh := webhook.New("")

	pl := pipeline.New(modelRouter, dedupEngine, reg, q, bus, wh, nil, 0.1, 4)
	go pl.Run(ctx)

	const spike = 200
	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < spike; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := pl.SubmitAndWait(ctx, models.IncomingTicket{
				TicketID: ticketID(idx),
				Subject:  "routine question",
				Body:     "just checking on my account status",
			})
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, spike, succeeded, "every submitted ticket should complete once the spike drains, even with a bounded worker pool")

	size, err := q.ProcessedSize(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, spike, size)
}

func TestGatewayPublishBreakerOpensOnRepeatedFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	group := circuit.NewBreakerGroup(circuit.Config{MaxFailures: 3, Timeout: time.Minute, HalfOpenMax: 1})
	failing := func() error { return assert.AnError }

	for i := 0; i < 3; i++ {
		_ = group.Execute(context.Background(), "tickets", failing)
	}

	err := group.Execute(context.Background(), "tickets", func() error { return nil })
	assert.Error(t, err, "breaker should refuse to even attempt the call once open, regardless of whether this attempt would have succeeded")
}

func ticketID(i int) string {
	return "spike-" + string(rune('a'+i%26)) + string(rune('0'+(i/26)%10))
}
