// Package dedup implements flash-flood detection: a sliding time window of
// recently-accepted ticket embeddings, checked for semantic similarity
// clusters large enough to warrant grouping under one Master Incident.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsline/ticketbroker/internal/embedding"
	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/store"
)

const (
	windowZSet           = "dedup:window"
	metaPrefix           = "dedup:meta:"
	incidentNextID       = "incident:next_id"
	incidentPrefix        = "incident:"
	incidentTicketsPrefix = "incident_tickets:"
	ticketIncidentPrefix  = "ticket_incident:"
	incidentsAllSet       = "incidents:all"
)

type windowMeta struct {
	TicketID string            `json:"ticket_id"`
	Vector   embedding.Vector  `json:"vector"`
	Category models.TicketCategory `json:"category"`
}

// Engine detects flash floods over a sliding window and manages Master
// Incidents.
type Engine struct {
	store         *store.Store
	lock          *Lock
	windowSeconds int
	simThreshold  float64
	minCount      int
}

// New builds a dedup Engine. lock may be nil when DEDUP_LOCK_ENABLED=false.
func New(s *store.Store, lock *Lock, windowSeconds int, simThreshold float64, minCount int) *Engine {
	return &Engine{store: s, lock: lock, windowSeconds: windowSeconds, simThreshold: simThreshold, minCount: minCount}
}

// Result is the outcome of CheckAndRecord.
type Result struct {
	IsPartOfMasterIncident bool
	MasterIncidentID       string
	ShouldSuppressAlert    bool
	CreatedNewIncident     bool
}

// CheckAndRecord records the ticket's embedding in the sliding window and
// checks whether its similarity cluster is now large enough to trigger a
// Master Incident. A trigger always creates a brand-new incident —
// existing incidents among the similar set are never reused, per spec §9's
// "always create new" resolution.
func (e *Engine) CheckAndRecord(ctx context.Context, ticket models.RoutedTicket, vec embedding.Vector) (Result, error) {
	now := time.Now()
	nowTS := float64(now.Unix())
	cutoff := nowTS - float64(e.windowSeconds)

	if err := e.store.ZRemRangeByScore(ctx, windowZSet, 0, cutoff); err != nil {
		return Result{}, fmt.Errorf("evict expired window entries: %w", err)
	}

	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("acquire dedup lock: %w", err)
		}
		defer unlock()
	}

	// Record before computing similar so the ticket counts against its own
	// threshold, matching the reference dedup service's write-then-scan order.
	if err := e.recordInWindow(ctx, ticket, vec, nowTS); err != nil {
		return Result{}, err
	}

	members, err := e.store.ZRangeByScore(ctx, windowZSet, cutoff, nowTS)
	if err != nil {
		return Result{}, fmt.Errorf("read window: %w", err)
	}

	var similar []string
	for _, tid := range members {
		meta, ok, err := e.loadMeta(ctx, tid)
		if err != nil || !ok {
			continue
		}
		sim := embedding.CosineSimilarity(vec, meta.Vector)
		if sim > e.simThreshold {
			similar = append(similar, tid)
		}
	}

	if len(similar) <= e.minCount {
		return Result{}, nil
	}

	incident, err := e.createIncident(ctx, ticket, similar)
	if err != nil {
		return Result{}, err
	}
	return Result{IsPartOfMasterIncident: true, MasterIncidentID: incident.IncidentID, ShouldSuppressAlert: true, CreatedNewIncident: true}, nil
}

func (e *Engine) recordInWindow(ctx context.Context, ticket models.RoutedTicket, vec embedding.Vector, ts float64) error {
	meta := windowMeta{TicketID: ticket.TicketID, Vector: vec, Category: ticket.Category}
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	ttl := time.Duration(e.windowSeconds+10) * time.Second
	if err := e.store.Set(ctx, metaPrefix+ticket.TicketID, string(payload), ttl); err != nil {
		return err
	}
	return e.store.ZAdd(ctx, windowZSet, ts, ticket.TicketID)
}

func (e *Engine) loadMeta(ctx context.Context, ticketID string) (windowMeta, bool, error) {
	v, ok, err := e.store.Get(ctx, metaPrefix+ticketID)
	if err != nil || !ok {
		return windowMeta{}, ok, err
	}
	var meta windowMeta
	if err := json.Unmarshal([]byte(v), &meta); err != nil {
		return windowMeta{}, false, err
	}
	return meta, true, nil
}

// createIncident allocates a new incident from the similar set. ticketIDs
// already includes root.TicketID, since the root ticket is recorded into
// the window (and thus into the similarity scan) before this is called.
func (e *Engine) createIncident(ctx context.Context, root models.RoutedTicket, ticketIDs []string) (models.MasterIncident, error) {
	nextID, err := e.store.Incr(ctx, incidentNextID)
	if err != nil {
		return models.MasterIncident{}, fmt.Errorf("allocate incident id: %w", err)
	}

	incidentID := fmt.Sprintf("incident-%d", nextID)

	incident := models.MasterIncident{
		IncidentID:   incidentID,
		Summary:      fmt.Sprintf("Flash-flood cluster of %d similar %s tickets", len(ticketIDs), root.Category),
		RootTicketID: root.TicketID,
		TicketIDs:    ticketIDs,
		CreatedAt:    float64(time.Now().Unix()),
		Status:       models.IncidentOpen,
	}

	if err := e.saveIncident(ctx, incident); err != nil {
		return models.MasterIncident{}, err
	}
	if err := e.store.SAdd(ctx, incidentsAllSet, incidentID); err != nil {
		return models.MasterIncident{}, err
	}

	for _, tid := range ticketIDs {
		if err := e.store.Set(ctx, ticketIncidentPrefix+tid, incidentID, 0); err != nil {
			return models.MasterIncident{}, err
		}
	}

	return incident, nil
}

func (e *Engine) saveIncident(ctx context.Context, incident models.MasterIncident) error {
	payload, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, incidentPrefix+incident.IncidentID, string(payload), 0)
}

// GetIncident fetches a single Master Incident by ID.
func (e *Engine) GetIncident(ctx context.Context, incidentID string) (models.MasterIncident, bool, error) {
	v, ok, err := e.store.Get(ctx, incidentPrefix+incidentID)
	if err != nil || !ok {
		return models.MasterIncident{}, ok, err
	}
	var incident models.MasterIncident
	if err := json.Unmarshal([]byte(v), &incident); err != nil {
		return models.MasterIncident{}, false, err
	}
	return incident, true, nil
}

// ListIncidents returns every known Master Incident.
func (e *Engine) ListIncidents(ctx context.Context) ([]models.MasterIncident, error) {
	ids, err := e.store.SMembers(ctx, incidentsAllSet)
	if err != nil {
		return nil, err
	}
	out := make([]models.MasterIncident, 0, len(ids))
	for _, id := range ids {
		incident, ok, err := e.GetIncident(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, incident)
		}
	}
	return out, nil
}

// IncidentForTicket returns the incident ID a ticket is currently linked
// to, if any.
func (e *Engine) IncidentForTicket(ctx context.Context, ticketID string) (string, bool, error) {
	return e.store.Get(ctx, ticketIncidentPrefix+ticketID)
}

// RemoveTicketFromIncident drops a ticket from an incident's ticket list
// and clears its reverse mapping. An incident left with no tickets is
// marked resolved.
func (e *Engine) RemoveTicketFromIncident(ctx context.Context, incidentID, ticketID string) error {
	incident, ok, err := e.GetIncident(ctx, incidentID)
	if err != nil || !ok {
		return err
	}
	filtered := incident.TicketIDs[:0]
	for _, tid := range incident.TicketIDs {
		if tid != ticketID {
			filtered = append(filtered, tid)
		}
	}
	incident.TicketIDs = filtered
	if len(incident.TicketIDs) == 0 {
		incident.Status = models.IncidentResolved
	}
	if err := e.saveIncident(ctx, incident); err != nil {
		return err
	}
	return e.store.Del(ctx, ticketIncidentPrefix+ticketID)
}

// CloseIncident marks an incident resolved.
func (e *Engine) CloseIncident(ctx context.Context, incidentID string) error {
	incident, ok, err := e.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("incident %s not found", incidentID)
	}
	incident.Status = models.IncidentResolved
	return e.saveIncident(ctx, incident)
}
