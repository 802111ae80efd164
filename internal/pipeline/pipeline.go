// Package pipeline runs the full per-ticket job: validate, classify,
// score, embed, dedup-check, queue, route, publish, and conditionally
// notify. It generalizes the teacher's bounded goroutine-pool-over-channel
// shape into an errgroup-backed worker pool sized by WORKER_CONCURRENCY.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/opsline/ticketbroker/internal/activity"
	"github.com/opsline/ticketbroker/internal/agents"
	"github.com/opsline/ticketbroker/internal/dedup"
	"github.com/opsline/ticketbroker/internal/embedding"
	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/queue"
	"github.com/opsline/ticketbroker/internal/router"
	"github.com/opsline/ticketbroker/internal/routing"
	"github.com/opsline/ticketbroker/internal/webhook"
	"github.com/opsline/ticketbroker/pkg/decimal"
	"github.com/opsline/ticketbroker/pkg/messaging"
)

// ErrInvalidTicket is returned when an incoming ticket fails validation.
var ErrInvalidTicket = errors.New("invalid ticket: ticket_id and subject are required")

// JobSubject is the NATS subject the gateway publishes incoming tickets to
// and the worker pool's queue-group subscriber consumes from — the durable
// transport between ticket acceptance and ticket processing.
const JobSubject = "tickets.jobs"

// JobQueueGroup is the NATS queue group name so multiple worker processes
// load-balance jobs rather than each receiving every ticket.
const JobQueueGroup = "ticket-workers"

// AuditLogger records routing and incident decisions best-effort. The
// audit package implements this; nil disables audit entirely.
type AuditLogger interface {
	LogRouting(ctx context.Context, ticket models.RoutedTicket, agentID string)
	LogIncident(ctx context.Context, incident models.MasterIncident)
}

// Pipeline wires together every stage of ticket processing.
type Pipeline struct {
	router     *router.Router
	dedup      *dedup.Engine
	agentsReg  *agents.Registry
	queue      *queue.Queue
	bus        *activity.Bus
	webhook    *webhook.Notifier
	audit      AuditLogger
	loadFactor float64

	concurrency int
	jobs        chan job
}

type job struct {
	ticket models.IncomingTicket
	result chan error
}

// New builds a Pipeline. audit may be nil.
func New(r *router.Router, d *dedup.Engine, reg *agents.Registry, q *queue.Queue, bus *activity.Bus, wh *webhook.Notifier, audit AuditLogger, loadFactor float64, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		router:      r,
		dedup:       d,
		agentsReg:   reg,
		queue:       q,
		bus:         bus,
		webhook:     wh,
		audit:       audit,
		loadFactor:  loadFactor,
		concurrency: concurrency,
		jobs:        make(chan job, concurrency*4),
	}
}

// Run starts the worker pool and blocks until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j, ok := <-p.jobs:
					if !ok {
						return nil
					}
					err := p.process(gctx, j.ticket)
					if j.result != nil {
						j.result <- err
					}
				}
			}
		})
	}

	return g.Wait()
}

// Submit enqueues a ticket for asynchronous processing and returns
// immediately, mirroring the ARQ job-enqueue semantics of the original
// broker's POST /tickets handler.
func (p *Pipeline) Submit(ticket models.IncomingTicket) {
	p.jobs <- job{ticket: ticket}
}

// SubmitAndWait enqueues a ticket and blocks until it has been fully
// processed, useful for synchronous test endpoints.
func (p *Pipeline) SubmitAndWait(ctx context.Context, ticket models.IncomingTicket) error {
	result := make(chan error, 1)
	select {
	case p.jobs <- job{ticket: ticket, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs the full ten-step sequence for a single ticket.
func (p *Pipeline) process(ctx context.Context, incoming models.IncomingTicket) error {
	// 1. validate
	if incoming.TicketID == "" || incoming.Subject == "" {
		return ErrInvalidTicket
	}

	// 2. classify
	category := router.Classify(incoming.Subject, incoming.Body)

	// 3. score urgency through the breaker-protected model router
	text := incoming.Subject + " " + incoming.Body
	score, err := p.router.ScoreUrgency(ctx, text)
	if err != nil {
		return fmt.Errorf("score urgency: %w", err)
	}

	routed := models.RoutedTicket{
		TicketID:      incoming.TicketID,
		Subject:       incoming.Subject,
		Body:          incoming.Body,
		CustomerID:    incoming.CustomerID,
		Category:      category,
		IsUrgent:      score >= 0.5,
		PriorityScore: decimal.RoundToPriority(score),
		UrgencyScore:  score,
	}

	// 4. embed
	vec := embedding.Embed(incoming.Subject, incoming.Body)

	// 5. dedup check-and-record
	dedupResult, err := p.dedup.CheckAndRecord(ctx, routed, vec)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}

	// 6. add to the priority queue unconditionally
	if err := p.queue.AddProcessed(ctx, routed); err != nil {
		return fmt.Errorf("enqueue processed ticket: %w", err)
	}

	// 7. route and assign to an online agent
	p.routeAndAssign(ctx, routed)

	// 8. publish the appropriate domain event for this outcome
	p.publishOutcome(ctx, routed, dedupResult)

	// 9. conditional high-urgency webhook — suppressed when this ticket
	// triggered a newly created master incident.
	if !dedupResult.ShouldSuppressAlert {
		p.webhook.TriggerHighUrgency(ctx, routed)
	}

	// 10. unconditional master-incident webhook on a fresh incident
	if dedupResult.CreatedNewIncident {
		if incident, ok, err := p.dedup.GetIncident(ctx, dedupResult.MasterIncidentID); err == nil && ok {
			p.webhook.TriggerMasterIncident(ctx, incident)
			if p.audit != nil {
				p.audit.LogIncident(ctx, incident)
			}
		}
	}

	return nil
}

func (p *Pipeline) routeAndAssign(ctx context.Context, routed models.RoutedTicket) {
	candidates, err := p.agentsReg.ListOnlineAgents(ctx)
	if err != nil {
		log.Printf("pipeline: list online agents: %v", err)
		return
	}

	agent, err := routing.Select(routed, candidates, p.loadFactor)
	if err != nil {
		log.Printf("pipeline: no agent available for ticket %s: %v", routed.TicketID, err)
		return
	}

	if err := p.agentsReg.AssignTicketToAgent(ctx, routed.TicketID, agent.AgentID); err != nil {
		log.Printf("pipeline: assign ticket %s to %s: %v", routed.TicketID, agent.AgentID, err)
		return
	}

	if p.audit != nil {
		p.audit.LogRouting(ctx, routed, agent.AgentID)
	}

	p.bus.EmitFor(ctx, messaging.EventTicketAssignedToAgent, routed.TicketID, messaging.TicketAssignedData{
		TicketID: routed.TicketID,
		AgentID:  agent.AgentID,
	})
}

func (p *Pipeline) publishOutcome(ctx context.Context, routed models.RoutedTicket, result dedup.Result) {
	switch {
	case result.CreatedNewIncident:
		p.bus.EmitFor(ctx, messaging.EventMasterIncidentCreated, result.MasterIncidentID, messaging.MasterIncidentCreatedData{
			IncidentID:   result.MasterIncidentID,
			RootTicketID: routed.TicketID,
		})
		p.bus.EmitFor(ctx, messaging.EventTicketLinkedToMasterIncident, routed.TicketID, messaging.TicketLinkedData{
			TicketID:     routed.TicketID,
			IncidentID:   result.MasterIncidentID,
			UrgencyScore: routed.UrgencyScore,
			Category:     string(routed.Category),
		})

	case result.IsPartOfMasterIncident:
		p.bus.EmitFor(ctx, messaging.EventTicketLinkedToMasterIncident, routed.TicketID, messaging.TicketLinkedData{
			TicketID:     routed.TicketID,
			IncidentID:   result.MasterIncidentID,
			UrgencyScore: routed.UrgencyScore,
			Category:     string(routed.Category),
		})

	default:
		p.bus.EmitFor(ctx, messaging.EventTicketProcessed, routed.TicketID, messaging.TicketProcessedData{
			TicketID:     routed.TicketID,
			UrgencyScore: routed.UrgencyScore,
			Category:     string(routed.Category),
			IsUrgent:     routed.IsUrgent,
		})
	}
}

// PopNext releases the popped ticket's agent capacity and incident
// linkage, mirroring the reference queue consumer's side effects.
func (p *Pipeline) PopNext(ctx context.Context) (models.RoutedTicket, bool, error) {
	ticket, ok, err := p.queue.PopNext(ctx)
	if err != nil || !ok {
		return ticket, ok, err
	}

	if err := p.agentsReg.ReleaseTicketFromAgent(ctx, ticket.TicketID); err != nil {
		log.Printf("pipeline: release ticket %s: %v", ticket.TicketID, err)
	}

	p.unlinkFromIncident(ctx, ticket.TicketID)

	p.bus.EmitFor(ctx, messaging.EventTicketPopped, ticket.TicketID, messaging.TicketProcessedData{
		TicketID:     ticket.TicketID,
		UrgencyScore: ticket.UrgencyScore,
		Category:     string(ticket.Category),
		IsUrgent:     ticket.IsUrgent,
	})

	return ticket, true, nil
}

// unlinkFromIncident removes a ticket from whatever incident it belongs to,
// if any, resolving the incident when it empties out.
func (p *Pipeline) unlinkFromIncident(ctx context.Context, ticketID string) {
	incidentID, linked, err := p.dedup.IncidentForTicket(ctx, ticketID)
	if err != nil {
		log.Printf("pipeline: lookup incident for ticket %s: %v", ticketID, err)
		return
	}
	if !linked {
		return
	}
	if err := p.dedup.RemoveTicketFromIncident(ctx, incidentID, ticketID); err != nil {
		log.Printf("pipeline: remove ticket %s from incident %s: %v", ticketID, incidentID, err)
	}
}

// ClearQueue unlinks every queued ticket from its incident, empties the
// processed queue, then force-zeroes every agent's load so a cleared queue
// never leaves stale assignments behind.
func (p *Pipeline) ClearQueue(ctx context.Context) error {
	snapshot, err := p.queue.ListSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot queue before clear: %w", err)
	}
	for _, ticket := range snapshot {
		p.unlinkFromIncident(ctx, ticket.TicketID)
	}

	if err := p.queue.ClearAll(ctx); err != nil {
		return err
	}

	if _, err := p.agentsReg.ForceZeroAllLoads(ctx); err != nil {
		return fmt.Errorf("force-zero agent loads after queue clear: %w", err)
	}

	p.bus.Emit(ctx, messaging.EventQueueCleared, struct{}{})
	return nil
}
