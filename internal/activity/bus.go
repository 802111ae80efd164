// Package activity is the process-local activity feed: a bounded ring
// buffer fed both by in-process Emit calls and by a background
// subscription to the shared "ticket_activity" pub/sub channel, so every
// gateway replica shows the same recent-events view regardless of which
// worker produced them.
package activity

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/opsline/ticketbroker/internal/store"
	"github.com/opsline/ticketbroker/pkg/messaging"
)

const (
	activityChannel = "ticket_activity"
	maxEvents       = 200
)

// Event is one entry in the activity feed — the same envelope that is
// published on the shared "ticket_activity" channel, so every consumer
// speaks one event shape.
type Event = messaging.Event

// Bus is a bounded, thread-safe ring of recent activity events.
type Bus struct {
	store *store.Store

	mu     sync.Mutex
	events []Event
}

// New builds a Bus. Call Run in a goroutine to start the background
// subscriber once the store is connected.
func New(s *store.Store) *Bus {
	return &Bus{store: s}
}

// Emit appends a local event to the ring and publishes it on the shared
// channel for other processes to pick up. The event carries an empty
// aggregate ID; use EmitFor to set one.
func (b *Bus) Emit(ctx context.Context, eventType string, data interface{}) {
	b.EmitFor(ctx, eventType, "", data)
}

// EmitFor is Emit with an explicit aggregate ID for correlation, typically
// the ticket or incident ID the event concerns.
func (b *Bus) EmitFor(ctx context.Context, eventType, aggregateID string, data interface{}) {
	evt, err := messaging.NewEvent(eventType, aggregateID, data, messaging.EventMetadata{Source: "ticketbroker"})
	if err != nil {
		log.Printf("activity: build event %s: %v", eventType, err)
		return
	}

	b.append(*evt)
	b.publish(ctx, *evt)
}

func (b *Bus) append(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, evt)
	if len(b.events) > maxEvents {
		b.events = b.events[len(b.events)-maxEvents:]
	}
}

func (b *Bus) publish(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	// Fire-and-forget: activity publication must never block or fail the
	// caller's real work.
	if err := b.store.Publish(ctx, activityChannel, string(payload)); err != nil {
		log.Printf("activity: publish failed: %v", err)
	}
}

// GetRecent returns up to limit of the most recent events, newest first.
func (b *Bus) GetRecent(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.events)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = b.events[n-1-i]
	}
	return out
}

// Run subscribes to the shared activity channel and feeds incoming events
// into the local ring, reconnecting on transient disconnects until ctx is
// canceled.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := b.subscribeLoop(ctx); err != nil {
			log.Printf("activity: subscriber error, reconnecting: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (b *Bus) subscribeLoop(ctx context.Context) error {
	pubsub := b.store.Subscribe(ctx, activityChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			b.append(evt)
		}
	}
}
