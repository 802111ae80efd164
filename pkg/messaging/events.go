package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published on the activity channel and consumed by the
// activity bus subscriber (SPEC_FULL.md §4.8-4.9).
const (
	EventTicketAccepted             = "ticket_accepted"
	EventTicketProcessed            = "ticket_processed"
	EventTicketAssignedToAgent      = "ticket_assigned_to_agent"
	EventTicketLinkedToMasterIncident = "ticket_linked_to_master_incident"
	EventMasterIncidentCreated      = "master_incident_created"
	EventTicketPopped               = "ticket_popped"
	EventQueueCleared               = "queue_cleared"
)

// Event is the base envelope published on the shared store's pub/sub
// channel and kept in the activity ring.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    EventMetadata   `json:"metadata"`
}

// EventMetadata carries correlation/source info for an event.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
	Source        string `json:"source"`
}

// TicketAssignedData is the payload for EventTicketAssignedToAgent.
type TicketAssignedData struct {
	TicketID string `json:"ticket_id"`
	AgentID  string `json:"agent_id"`
}

// TicketLinkedData is the payload for EventTicketLinkedToMasterIncident.
type TicketLinkedData struct {
	TicketID     string  `json:"ticket_id"`
	IncidentID   string  `json:"incident_id"`
	UrgencyScore float64 `json:"urgency_score"`
	Category     string  `json:"category"`
}

// MasterIncidentCreatedData is the payload for EventMasterIncidentCreated.
type MasterIncidentCreatedData struct {
	IncidentID   string `json:"incident_id"`
	Summary      string `json:"summary"`
	RootTicketID string `json:"root_ticket_id"`
	TicketCount  int    `json:"ticket_count"`
}

// TicketProcessedData is the payload for EventTicketProcessed.
type TicketProcessedData struct {
	TicketID     string  `json:"ticket_id"`
	UrgencyScore float64 `json:"urgency_score"`
	Category     string  `json:"category"`
	IsUrgent     bool    `json:"is_urgent"`
}

// NewEvent creates a new event envelope with a generated ID and timestamp.
func NewEvent(eventType string, aggregateID string, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
		Version:     1,
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseEventData parses event data into the specified type.
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
