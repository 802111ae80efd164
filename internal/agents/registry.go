// Package agents is the Redis-backed agent registry: agent records, the
// online-agent set, and the reverse ticket->agent assignment map, plus the
// reconciliation primitives used to repair drifted load counters.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/store"
)

const (
	agentPrefix          = "agent:"
	agentsOnlineSet      = "agents:online"
	agentsAllSet         = "agents:all"
	ticketAssigneePrefix = "ticket_assignee:"
)

// Registry manages agent records and ticket assignments.
type Registry struct {
	store *store.Store
}

// New builds a Registry over the shared store.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// mockAgents mirrors the reference seed data: one specialist per category
// plus a generalist with balanced skill weights.
var mockAgents = []models.Agent{
	{AgentID: "tech-1", DisplayName: "Tech Agent 1", SkillVector: models.SkillVector{Tech: 0.9, Billing: 0.05, Legal: 0.05}, MaxConcurrentTickets: 10, Status: models.AgentOnline},
	{AgentID: "billing-1", DisplayName: "Billing Agent 1", SkillVector: models.SkillVector{Tech: 0.05, Billing: 0.9, Legal: 0.05}, MaxConcurrentTickets: 10, Status: models.AgentOnline},
	{AgentID: "legal-1", DisplayName: "Legal Agent 1", SkillVector: models.SkillVector{Tech: 0.05, Billing: 0.05, Legal: 0.9}, MaxConcurrentTickets: 8, Status: models.AgentOnline},
	{AgentID: "generalist-1", DisplayName: "Generalist Agent 1", SkillVector: models.SkillVector{Tech: 0.34, Billing: 0.33, Legal: 0.33}, MaxConcurrentTickets: 10, Status: models.AgentOnline},
}

// SeedMockAgents registers the four mock agents only if none are present.
func (r *Registry) SeedMockAgents(ctx context.Context) error {
	members, err := r.store.SMembers(ctx, agentsOnlineSet)
	if err != nil {
		return fmt.Errorf("check existing agents: %w", err)
	}
	if len(members) > 0 {
		return nil
	}
	for _, a := range mockAgents {
		if err := r.RegisterAgent(ctx, a); err != nil {
			return fmt.Errorf("seed agent %s: %w", a.AgentID, err)
		}
	}
	return nil
}

func (r *Registry) key(agentID string) string {
	return agentPrefix + agentID
}

// RegisterAgent upserts an agent record and marks it online.
func (r *Registry) RegisterAgent(ctx context.Context, agent models.Agent) error {
	agent.Status = models.AgentOnline
	payload, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.key(agent.AgentID), string(payload), 0); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, agentsAllSet, agent.AgentID); err != nil {
		return err
	}
	return r.store.SAdd(ctx, agentsOnlineSet, agent.AgentID)
}

// GetAgent fetches a single agent record.
func (r *Registry) GetAgent(ctx context.Context, agentID string) (models.Agent, bool, error) {
	v, ok, err := r.store.Get(ctx, r.key(agentID))
	if err != nil || !ok {
		return models.Agent{}, ok, err
	}
	var agent models.Agent
	if err := json.Unmarshal([]byte(v), &agent); err != nil {
		return models.Agent{}, false, err
	}
	return agent, true, nil
}

func (r *Registry) saveAgent(ctx context.Context, agent models.Agent) error {
	payload, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key(agent.AgentID), string(payload), 0)
}

// ListOnlineAgents returns every online agent with spare capacity
// (current_load < max_concurrent_tickets).
func (r *Registry) ListOnlineAgents(ctx context.Context) ([]models.Agent, error) {
	ids, err := r.store.SMembers(ctx, agentsOnlineSet)
	if err != nil {
		return nil, err
	}

	var out []models.Agent
	for _, id := range ids {
		agent, ok, err := r.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || agent.Status != models.AgentOnline {
			continue
		}
		if agent.CurrentLoad < agent.MaxConcurrentTickets {
			out = append(out, agent)
		}
	}
	return out, nil
}

// AssignTicketToAgent increments the agent's load and records the reverse
// mapping ticket_assignee:{tid} -> agentID.
func (r *Registry) AssignTicketToAgent(ctx context.Context, ticketID, agentID string) error {
	agent, ok, err := r.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}

	agent.CurrentLoad++
	if err := r.saveAgent(ctx, agent); err != nil {
		return err
	}
	return r.store.Set(ctx, ticketAssigneePrefix+ticketID, agentID, 0)
}

// ReleaseTicketFromAgent decrements the assigned agent's load and removes
// the reverse mapping. No-op if the ticket has no recorded assignee.
func (r *Registry) ReleaseTicketFromAgent(ctx context.Context, ticketID string) error {
	agentID, ok, err := r.store.Get(ctx, ticketAssigneePrefix+ticketID)
	if err != nil || !ok {
		return err
	}

	agent, ok, err := r.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if ok {
		if agent.CurrentLoad > 0 {
			agent.CurrentLoad--
		}
		if err := r.saveAgent(ctx, agent); err != nil {
			return err
		}
	}
	return r.store.Del(ctx, ticketAssigneePrefix+ticketID)
}

// AssigneeOf returns the agent ID currently assigned to a ticket, if any.
func (r *Registry) AssigneeOf(ctx context.Context, ticketID string) (string, bool, error) {
	return r.store.Get(ctx, ticketAssigneePrefix+ticketID)
}

// assignmentCounts scans every ticket_assignee:* key and tallies how many
// point at each agent ID.
func (r *Registry) assignmentCounts(ctx context.Context) (map[string]int, error) {
	keys, err := r.store.ScanKeys(ctx, ticketAssigneePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	counts := make(map[string]int, len(keys))
	for _, key := range keys {
		agentID, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		counts[agentID]++
	}
	return counts, nil
}

// ReconcileAgentLoads recomputes every agent's current_load from the exact
// count of ticket_assignee:* keys pointing at it, repairing drift in either
// direction: a crashed worker that incremented load without releasing it
// (too high), or a release that fired without a matching assignment (too
// low). Returns the number of agents whose stored load changed.
func (r *Registry) ReconcileAgentLoads(ctx context.Context) (int, error) {
	ids, err := r.store.SMembers(ctx, agentsAllSet)
	if err != nil {
		return 0, err
	}

	counts, err := r.assignmentCounts(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		agent, ok, err := r.GetAgent(ctx, id)
		if err != nil {
			return changed, err
		}
		if !ok {
			continue
		}
		trueLoad := counts[id]
		if agent.CurrentLoad == trueLoad {
			continue
		}
		agent.CurrentLoad = trueLoad
		if err := r.saveAgent(ctx, agent); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// ForceZeroAllLoads deletes every ticket_assignee:* key and sets every
// agent's current_load to zero, an operator escape hatch for clearing stuck
// assignments entirely. Returns the number of agents zeroed.
func (r *Registry) ForceZeroAllLoads(ctx context.Context) (int, error) {
	keys, err := r.store.ScanKeys(ctx, ticketAssigneePrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan assignments: %w", err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, err
	}

	ids, err := r.store.SMembers(ctx, agentsAllSet)
	if err != nil {
		return 0, err
	}

	zeroed := 0
	for _, id := range ids {
		agent, ok, err := r.GetAgent(ctx, id)
		if err != nil {
			return zeroed, err
		}
		if !ok {
			continue
		}
		agent.CurrentLoad = 0
		if err := r.saveAgent(ctx, agent); err != nil {
			return zeroed, err
		}
		zeroed++
	}
	return zeroed, nil
}

// TicketsForAgent returns every ticket ID currently assigned to an agent,
// derived from the ticket_assignee:* reverse map.
func (r *Registry) TicketsForAgent(ctx context.Context, agentID string) ([]string, error) {
	keys, err := r.store.ScanKeys(ctx, ticketAssigneePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	var tickets []string
	for _, key := range keys {
		assignee, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok || assignee != agentID {
			continue
		}
		tickets = append(tickets, strings.TrimPrefix(key, ticketAssigneePrefix))
	}
	return tickets, nil
}

// ListAssignments returns every current ticket->agent assignment.
func (r *Registry) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	keys, err := r.store.ScanKeys(ctx, ticketAssigneePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	out := make([]models.Assignment, 0, len(keys))
	for _, key := range keys {
		agentID, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, models.Assignment{
			TicketID: strings.TrimPrefix(key, ticketAssigneePrefix),
			AgentID:  agentID,
		})
	}
	return out, nil
}
