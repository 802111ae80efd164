package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/ticketbroker/pkg/messaging"
)

func TestNewEventRoundTrip(t *testing.T) {
	data := messaging.TicketAssignedData{TicketID: "t-1", AgentID: "tech-1"}

	evt, err := messaging.NewEvent(messaging.EventTicketAssignedToAgent, "t-1", data, messaging.EventMetadata{Source: "test"})
	require.NoError(t, err)

	assert.Equal(t, messaging.EventTicketAssignedToAgent, evt.Type)
	assert.Equal(t, "t-1", evt.AggregateID)
	assert.NotEqual(t, evt.ID.String(), "")

	parsed, err := messaging.ParseEventData[messaging.TicketAssignedData](evt)
	require.NoError(t, err)
	assert.Equal(t, data, *parsed)
}
