package routing

import (
	"errors"

	"github.com/opsline/ticketbroker/internal/models"
)

// ErrNoAgentsAvailable is returned when there are no online candidate
// agents to route to.
var ErrNoAgentsAvailable = errors.New("no agents available for routing")

// Select picks the best agent for a routed ticket among the given
// candidates: score = cosine(ticket_skill, agent_skill) - loadPenaltyFactor
// * (current_load / max(1, max_concurrent)), highest score wins, ties
// broken by candidate order (store-determined, not guaranteed stable).
func Select(ticket models.RoutedTicket, candidates []models.Agent, loadPenaltyFactor float64) (models.Agent, error) {
	if len(candidates) == 0 {
		return models.Agent{}, ErrNoAgentsAvailable
	}

	ticketVec := TicketSkillVector(ticket.Category, ticket.UrgencyScore)

	best := candidates[0]
	bestScore := score(ticketVec, best, loadPenaltyFactor)

	for _, agent := range candidates[1:] {
		s := score(ticketVec, agent, loadPenaltyFactor)
		if s > bestScore {
			bestScore = s
			best = agent
		}
	}

	return best, nil
}

func score(ticketVec [3]float64, agent models.Agent, loadPenaltyFactor float64) float64 {
	agentVec := AgentSkillVector(agent.SkillVector)
	sim := cosineSimilarity(ticketVec, agentVec)

	maxConcurrent := agent.MaxConcurrentTickets
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	loadFraction := float64(agent.CurrentLoad) / float64(maxConcurrent)

	return sim - loadPenaltyFactor*loadFraction
}
