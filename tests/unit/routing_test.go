package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/routing"
)

func TestSkillVectors(t *testing.T) {
	t.Run("technical category maps to [1,0,0] normalized", func(t *testing.T) {
		v := routing.TicketSkillVector(models.CategoryTechnical, 0.5)
		assert.InDelta(t, 1.0, v[0], 0.0001)
		assert.InDelta(t, 0.0, v[1], 0.0001)
		assert.InDelta(t, 0.0, v[2], 0.0001)
	})

	t.Run("billing category maps to [0,1,0] normalized", func(t *testing.T) {
		v := routing.TicketSkillVector(models.CategoryBilling, 0.5)
		assert.InDelta(t, 1.0, v[1], 0.0001)
	})
}

func TestSelect(t *testing.T) {
	ticket := models.RoutedTicket{TicketID: "t1", Category: models.CategoryTechnical, UrgencyScore: 0.5}

	t.Run("picks the best-matching specialist over a loaded generalist", func(t *testing.T) {
		techSpecialist := models.Agent{AgentID: "tech-1", SkillVector: models.SkillVector{Tech: 0.9, Billing: 0.05, Legal: 0.05}, MaxConcurrentTickets: 10, CurrentLoad: 0}
		generalist := models.Agent{AgentID: "generalist-1", SkillVector: models.SkillVector{Tech: 0.34, Billing: 0.33, Legal: 0.33}, MaxConcurrentTickets: 10, CurrentLoad: 0}

		agent, err := routing.Select(ticket, []models.Agent{generalist, techSpecialist}, 0.1)
		require.NoError(t, err)
		assert.Equal(t, "tech-1", agent.AgentID)
	})

	t.Run("load penalty can tip the choice toward a less-loaded agent", func(t *testing.T) {
		overloaded := models.Agent{AgentID: "tech-1", SkillVector: models.SkillVector{Tech: 1, Billing: 0, Legal: 0}, MaxConcurrentTickets: 10, CurrentLoad: 10}
		generalist := models.Agent{AgentID: "generalist-1", SkillVector: models.SkillVector{Tech: 0.34, Billing: 0.33, Legal: 0.33}, MaxConcurrentTickets: 10, CurrentLoad: 0}

		agent, err := routing.Select(ticket, []models.Agent{overloaded, generalist}, 1.5)
		require.NoError(t, err)
		assert.Equal(t, "generalist-1", agent.AgentID)
	})

	t.Run("returns an error when there are no candidates", func(t *testing.T) {
		_, err := routing.Select(ticket, nil, 0.1)
		assert.ErrorIs(t, err, routing.ErrNoAgentsAvailable)
	})
}
