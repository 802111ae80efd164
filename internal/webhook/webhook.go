// Package webhook fires best-effort outbound Slack-style notifications.
// Every call is fire-and-forget: failures are logged and swallowed, never
// propagated to the caller, since a webhook outage must never stall ticket
// processing.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/opsline/ticketbroker/internal/models"
)

const postTimeout = 5 * time.Second

// Notifier posts webhook payloads to a configured URL.
type Notifier struct {
	url    string
	client *http.Client
}

// New builds a Notifier. An empty url disables all notifications.
func New(url string) *Notifier {
	return &Notifier{url: url, client: &http.Client{Timeout: postTimeout}}
}

type slackPayload struct {
	Text string `json:"text"`
}

// TriggerHighUrgency fires only when urgencyScore exceeds 0.8.
func (n *Notifier) TriggerHighUrgency(ctx context.Context, ticket models.RoutedTicket) {
	if n.url == "" || ticket.UrgencyScore <= 0.8 {
		return
	}
	text := fmt.Sprintf("High urgency ticket %s (score=%.2f, category=%s)", ticket.TicketID, ticket.UrgencyScore, ticket.Category)
	n.post(ctx, text)
}

// TriggerMasterIncident fires unconditionally whenever a new Master
// Incident is created.
func (n *Notifier) TriggerMasterIncident(ctx context.Context, incident models.MasterIncident) {
	if n.url == "" {
		return
	}
	text := fmt.Sprintf("New master incident %s: %s (%d tickets)", incident.IncidentID, incident.Summary, len(incident.TicketIDs))
	n.post(ctx, text)
}

func (n *Notifier) post(ctx context.Context, text string) {
	payload, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("webhook: post failed: %v", err)
		return
	}
	defer resp.Body.Close()
}
