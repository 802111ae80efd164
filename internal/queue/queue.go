// Package queue is the priority queue of processed (classified, scored)
// tickets waiting for a consumer to pop them: a Redis sorted set keyed by
// urgency score, so the highest-urgency ticket always pops first. Ties are
// broken however the store orders equal scores — callers must not depend
// on a particular tie-break order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/store"
)

const processedZSet = "ticket_queue:processed"

// Queue is the Redis-backed processed-ticket priority queue.
type Queue struct {
	store *store.Store
}

// New builds a Queue over the shared store.
func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

// AddProcessed pushes a routed ticket into the queue, scored by urgency.
func (q *Queue) AddProcessed(ctx context.Context, ticket models.RoutedTicket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("marshal routed ticket: %w", err)
	}
	return q.store.ZAdd(ctx, processedZSet, ticket.UrgencyScore, string(payload))
}

// PopNext atomically removes and returns the highest-urgency ticket.
func (q *Queue) PopNext(ctx context.Context) (models.RoutedTicket, bool, error) {
	raw, ok, err := q.store.ZPopMax(ctx, processedZSet)
	if err != nil || !ok {
		return models.RoutedTicket{}, ok, err
	}
	var ticket models.RoutedTicket
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		return models.RoutedTicket{}, false, fmt.Errorf("unmarshal routed ticket: %w", err)
	}
	return ticket, true, nil
}

// PeekNext returns the highest-urgency ticket without removing it.
func (q *Queue) PeekNext(ctx context.Context) (models.RoutedTicket, bool, error) {
	raw, ok, err := q.store.ZPeekMax(ctx, processedZSet)
	if err != nil || !ok {
		return models.RoutedTicket{}, ok, err
	}
	var ticket models.RoutedTicket
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		return models.RoutedTicket{}, false, fmt.Errorf("unmarshal routed ticket: %w", err)
	}
	return ticket, true, nil
}

// ProcessedSize returns the number of tickets currently queued.
func (q *Queue) ProcessedSize(ctx context.Context) (int64, error) {
	return q.store.ZCard(ctx, processedZSet)
}

// ListSnapshot returns every queued ticket in descending urgency order,
// without removing them.
func (q *Queue) ListSnapshot(ctx context.Context) ([]models.RoutedTicket, error) {
	raws, err := q.store.ZRevRangeAll(ctx, processedZSet)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoutedTicket, 0, len(raws))
	for _, raw := range raws {
		var ticket models.RoutedTicket
		if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
			continue
		}
		out = append(out, ticket)
	}
	return out, nil
}

// ClearAll empties the queue.
func (q *Queue) ClearAll(ctx context.Context) error {
	return q.store.Del(ctx, processedZSet)
}
