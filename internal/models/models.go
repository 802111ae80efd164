// Package models defines the data types shared across the ticket broker:
// the incoming ticket, its routed/classified form, master incidents, and
// agents. These types cross package boundaries (store, dedup, routing,
// gateway) and carry their JSON tags for both Redis string encoding and
// HTTP responses.
package models

// TicketCategory is the result of keyword-based classification.
type TicketCategory string

const (
	CategoryBilling   TicketCategory = "Billing"
	CategoryTechnical TicketCategory = "Technical"
	CategoryLegal     TicketCategory = "Legal"
)

// IncomingTicket is the payload accepted at the HTTP boundary. Immutable
// once accepted.
type IncomingTicket struct {
	TicketID   string `json:"ticket_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	CustomerID string `json:"customer_id,omitempty"`
}

// RoutedTicket is a ticket after classification and urgency scoring.
type RoutedTicket struct {
	TicketID      string         `json:"ticket_id"`
	Subject       string         `json:"subject"`
	Body          string         `json:"body"`
	CustomerID    string         `json:"customer_id,omitempty"`
	Category      TicketCategory `json:"category"`
	IsUrgent      bool           `json:"is_urgent"`
	PriorityScore int            `json:"priority_score"`
	UrgencyScore  float64        `json:"urgency_score"`
}

// TicketAccepted is the 202 response body.
type TicketAccepted struct {
	TicketID string `json:"ticket_id"`
	JobID    string `json:"job_id"`
	Message  string `json:"message"`
}

// SkillVector is a non-negative 3-vector over (tech, billing, legal).
type SkillVector struct {
	Tech    float64 `json:"tech"`
	Billing float64 `json:"billing"`
	Legal   float64 `json:"legal"`
}

// AgentStatus is online/offline.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Agent is a support agent with a skill vector and bounded capacity.
type Agent struct {
	AgentID              string      `json:"agent_id"`
	DisplayName          string      `json:"display_name"`
	SkillVector          SkillVector `json:"skill_vector"`
	MaxConcurrentTickets int         `json:"max_concurrent_tickets"`
	CurrentLoad          int         `json:"current_load"`
	Status               AgentStatus `json:"status"`
}

// IncidentStatus is open/resolved.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// MasterIncident groups tickets that triggered a flash-flood detection.
type MasterIncident struct {
	IncidentID   string         `json:"incident_id"`
	Summary      string         `json:"summary"`
	RootTicketID string         `json:"root_ticket_id"`
	TicketIDs    []string       `json:"ticket_ids"`
	CreatedAt    float64        `json:"created_at"`
	Status       IncidentStatus `json:"status"`
}

// CircuitState is the Model Router breaker's state machine position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitStateSnapshot is returned by GetCircuitState for observability.
type CircuitStateSnapshot struct {
	State           CircuitState `json:"state"`
	OpenedAt        float64      `json:"opened_at"`
	HalfOpenProbes  int          `json:"half_open_probes"`
}

// Assignment pairs a ticket with the agent responsible for it.
type Assignment struct {
	TicketID string `json:"ticket_id"`
	AgentID  string `json:"agent_id"`
}
