// Package audit is an optional, best-effort append-only log of routing and
// incident decisions, backed by Postgres via lib/pq. Writes never block or
// fail the caller: audit is observability, not a transactional guarantee.
package audit

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/opsline/ticketbroker/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS routing_decisions (
	id BIGSERIAL PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	category TEXT NOT NULL,
	urgency_score DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS incident_decisions (
	id BIGSERIAL PRIMARY KEY,
	incident_id TEXT NOT NULL,
	root_ticket_id TEXT NOT NULL,
	ticket_count INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Trail is a Postgres-backed audit log. A nil *Trail is valid and treated
// as "audit disabled" by callers that check for it.
type Trail struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the audit tables exist. Returns
// (nil, nil) if databaseURL is empty, signaling audit is disabled.
func Open(databaseURL string) (*Trail, error) {
	if databaseURL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Trail{db: db}, nil
}

// Close releases the database handle.
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}

// LogRouting records a routing decision. Failures are logged, never
// returned: a stalled audit write must never stall ticket processing.
func (t *Trail) LogRouting(ctx context.Context, ticket models.RoutedTicket, agentID string) {
	if t == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := t.db.ExecContext(wctx,
		`INSERT INTO routing_decisions (ticket_id, agent_id, category, urgency_score) VALUES ($1, $2, $3, $4)`,
		ticket.TicketID, agentID, string(ticket.Category), ticket.UrgencyScore,
	)
	if err != nil {
		log.Printf("audit: log routing failed: %v", err)
	}
}

// LogIncident records a new Master Incident.
func (t *Trail) LogIncident(ctx context.Context, incident models.MasterIncident) {
	if t == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := t.db.ExecContext(wctx,
		`INSERT INTO incident_decisions (incident_id, root_ticket_id, ticket_count) VALUES ($1, $2, $3)`,
		incident.IncidentID, incident.RootTicketID, len(incident.TicketIDs),
	)
	if err != nil {
		log.Printf("audit: log incident failed: %v", err)
	}
}

// RoutingRecord is a row returned from ListRouting.
type RoutingRecord struct {
	TicketID     string    `json:"ticket_id"`
	AgentID      string    `json:"agent_id"`
	Category     string    `json:"category"`
	UrgencyScore float64   `json:"urgency_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRouting returns the most recent routing decisions, newest first.
func (t *Trail) ListRouting(ctx context.Context, limit int) ([]RoutingRecord, error) {
	if t == nil {
		return []RoutingRecord{}, nil
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT ticket_id, agent_id, category, urgency_score, created_at FROM routing_decisions ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoutingRecord
	for rows.Next() {
		var r RoutingRecord
		if err := rows.Scan(&r.TicketID, &r.AgentID, &r.Category, &r.UrgencyScore, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IncidentRecord is a row returned from ListIncidents.
type IncidentRecord struct {
	IncidentID   string    `json:"incident_id"`
	RootTicketID string    `json:"root_ticket_id"`
	TicketCount  int       `json:"ticket_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListIncidents returns the most recent incident decisions, newest first.
func (t *Trail) ListIncidents(ctx context.Context, limit int) ([]IncidentRecord, error) {
	if t == nil {
		return []IncidentRecord{}, nil
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT incident_id, root_ticket_id, ticket_count, created_at FROM incident_decisions ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncidentRecord
	for rows.Next() {
		var r IncidentRecord
		if err := rows.Scan(&r.IncidentID, &r.RootTicketID, &r.TicketCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
