package integration

import (
	"context"
	"testing"

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
)

// newPipeline wires every stage against a shared in-memory miniredis
// instance, mirroring what cmd/gateway and cmd/worker assemble in
// production minus the NATS transport between them — here tickets are
// submitted directly into the local worker pool.
func newPipeline(t *testing.T) (*pipeline.Pipeline, *agents.Registry, *dedup.Engine, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := agents.New(s)
	require.NoError(t, reg.SeedMockAgents(context.Background()))

	dedupEngine := dedup.New(s, nil, 60, 0.9, 100) // high minCount: flash-flood is not this suite's concern
	q := queue.New(s)
	bus := activity.New(s)
	modelRouter := router.New(s, &router.StubTransformer{}, 30, 2)
	wh := webhook.New("") // no-op: no webhook URL configured

	pl := pipeline.New(modelRouter, dedupEngine, reg, q, bus, wh, nil, 0.1, 2)
	return pl, reg, dedupEngine, q
}

func TestTicketFlowsThroughPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pl, _, _, q := newPipeline(t)

	go pl.Run(ctx)

	err := pl.SubmitAndWait(ctx, models.IncomingTicket{
		TicketID: "tick-1",
		Subject:  "urgent database outage",
		Body:     "production database is down, please help immediately",
	})
	require.NoError(t, err)

	size, err := q.ProcessedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	routed, ok, err := q.PeekNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tick-1", routed.TicketID)
	assert.Equal(t, models.CategoryTechnical, routed.Category)
	assert.True(t, routed.IsUrgent)
}

func TestInvalidTicketRejectedBeforeQueueing(t *testing.T) {
	ctx := context.Background()
	pl, _, _, q := newPipeline(t)

	go pl.Run(ctx)

	err := pl.SubmitAndWait(ctx, models.IncomingTicket{TicketID: "", Subject: ""})
	require.ErrorIs(t, err, pipeline.ErrInvalidTicket)

	size, err := q.ProcessedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestTicketGetsAssignedToMatchingSpecialist(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pl, reg, _, _ := newPipeline(t)

	go pl.Run(ctx)

	require.NoError(t, pl.SubmitAndWait(ctx, models.IncomingTicket{
		TicketID: "billing-1-ticket",
		Subject:  "invoice overcharge refund",
		Body:     "I was billed twice for my subscription this month",
	}))

	assignee, ok, err := reg.AssigneeOf(ctx, "billing-1-ticket")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "billing-1", assignee)
}

func TestPopNextReleasesAgentCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pl, reg, _, _ := newPipeline(t)

	go pl.Run(ctx)

	require.NoError(t, pl.SubmitAndWait(ctx, models.IncomingTicket{
		TicketID: "tick-2",
		Subject:  "need legal review of contract",
		Body:     "our vendor contract needs a legal amendment",
	}))

	agentBefore, ok, err := reg.GetAgent(ctx, "legal-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, agentBefore.CurrentLoad)

	popped, ok, err := pl.PopNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tick-2", popped.TicketID)

	agentAfter, ok, err := reg.GetAgent(ctx, "legal-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, agentAfter.CurrentLoad)
}

func TestFlashFloodCreatesMasterIncidentAcrossPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := agents.New(s)
	require.NoError(t, reg.SeedMockAgents(ctx))
	// minCount=4 over 5 identical tickets: the threshold (count of similar
	// in-window tickets strictly greater than minCount) is crossed exactly
	// once, on the 5th submission, so exactly one incident is created.
	dedupEngine := dedup.New(s, nil, 60, 0.9, 4)
	q := queue.New(s)
	bus := activity.New(s)
	modelRouter := router.New(s, &router.StubTransformer{}, 30, 2)
	wh := webhook.New("")

	pl := pipeline.New(modelRouter, dedupEngine, reg, q, bus, wh, nil, 0.1, 2)
	go pl.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, pl.SubmitAndWait(ctx, models.IncomingTicket{
			TicketID: "flood-" + string(rune('a'+i)),
			Subject:  "outage",
			Body:     "database connection refused",
		}))
	}

	incidents, err := dedupEngine.ListIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.GreaterOrEqual(t, len(incidents[0].TicketIDs), 5)
}
