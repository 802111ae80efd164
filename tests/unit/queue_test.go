package unit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/queue"
)

func TestQueuePopsHighestUrgencyFirst(t *testing.T) {
	ctx := context.Background()
	q := queue.New(newTestStore(t))

	require.NoError(t, q.AddProcessed(ctx, models.RoutedTicket{TicketID: "low", UrgencyScore: 0.2}))
	require.NoError(t, q.AddProcessed(ctx, models.RoutedTicket{TicketID: "high", UrgencyScore: 0.9}))
	require.NoError(t, q.AddProcessed(ctx, models.RoutedTicket{TicketID: "mid", UrgencyScore: 0.5}))

	size, err := q.ProcessedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)

	first, ok, err := q.PopNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "high", first.TicketID)

	second, ok, err := q.PopNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mid", second.TicketID)
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	ctx := context.Background()
	q := queue.New(newTestStore(t))

	require.NoError(t, q.AddProcessed(ctx, models.RoutedTicket{TicketID: "only", UrgencyScore: 0.7}))

	peeked, ok, err := q.PeekNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "only", peeked.TicketID)

	size, err := q.ProcessedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestQueuePopOnEmptyQueue(t *testing.T) {
	ctx := context.Background()
	q := queue.New(newTestStore(t))

	_, ok, err := q.PopNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueClearAll(t *testing.T) {
	ctx := context.Background()
	q := queue.New(newTestStore(t))

	require.NoError(t, q.AddProcessed(ctx, models.RoutedTicket{TicketID: "a", UrgencyScore: 0.1}))
	require.NoError(t, q.ClearAll(ctx))

	size, err := q.ProcessedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}
