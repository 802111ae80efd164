// Package gateway exposes the ticket broker's HTTP surface: ticket
// submission, queue introspection, agent/incident/circuit observability,
// and an optional websocket stream of the activity feed. It follows the
// teacher's gin.Default()-plus-manual-route-registration shape, guarding
// its own publish-to-durable-queue calls with the in-process circuit
// breaker the same way the original gateway guarded order submission.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/opsline/ticketbroker/internal/activity"
	"github.com/opsline/ticketbroker/internal/agents"
	"github.com/opsline/ticketbroker/internal/audit"
	"github.com/opsline/ticketbroker/internal/dedup"
	"github.com/opsline/ticketbroker/internal/metrics"
	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/pipeline"
	"github.com/opsline/ticketbroker/internal/queue"
	"github.com/opsline/ticketbroker/internal/router"
	"github.com/opsline/ticketbroker/pkg/circuit"
	"github.com/opsline/ticketbroker/pkg/decimal"
	"github.com/opsline/ticketbroker/pkg/messaging"
)

// Gateway holds every dependency the HTTP handlers need.
type Gateway struct {
	pipeline *pipeline.Pipeline
	queue    *queue.Queue
	agents   *agents.Registry
	dedup    *dedup.Engine
	router   *router.Router
	bus      *activity.Bus
	metrics  *metrics.Exporter
	audit    *audit.Trail

	breakers *circuit.BreakerGroup
	upgrader websocket.Upgrader
	nats     *messaging.Client
}

// New builds a Gateway. nats is the durable job queue transport: ticket
// submissions are published to pipeline.JobSubject rather than processed
// in-process, so the gateway stays responsive even if every worker is busy.
func New(p *pipeline.Pipeline, q *queue.Queue, reg *agents.Registry, d *dedup.Engine, r *router.Router, bus *activity.Bus, m *metrics.Exporter, at *audit.Trail, nc *messaging.Client, rateLimitPerSecond int) *Gateway {
	return &Gateway{
		pipeline: p,
		queue:    q,
		agents:   reg,
		dedup:    d,
		router:   r,
		bus:      bus,
		metrics:  m,
		audit:    at,
		nats:     nc,
		breakers: circuit.NewBreakerGroup(circuit.Config{
			MaxFailures: 5,
			Timeout:     10 * time.Second,
			HalfOpenMax: 2,
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Engine builds the gin engine with every route registered. No auth
// middleware is installed — authn/authz is out of scope.
func (gw *Gateway) Engine() *gin.Engine {
	r := gin.Default()

	r.POST("/tickets", gw.handleSubmitTicket)
	r.POST("/tickets/batch", gw.handleSubmitBatch)
	r.GET("/tickets/next", gw.handlePopNext)
	r.GET("/tickets/peek", gw.handlePeekNext)
	r.GET("/queue/size", gw.handleQueueSize)
	r.GET("/queue", gw.handleQueueSnapshot)
	r.DELETE("/queue", gw.handleClearQueue)
	r.GET("/activity", gw.handleActivity)
	r.GET("/health", gw.handleHealth)
	r.POST("/urgency-score", gw.handleUrgencyScore)

	r.GET("/agents", gw.handleListAgents)
	r.POST("/agents", gw.handleRegisterAgent)
	r.GET("/agents/:id", gw.handleGetAgent)
	r.GET("/agents/:id/tickets", gw.handleAgentTickets)
	r.POST("/agents/loads/reconcile", gw.handleReconcileLoads)
	r.POST("/agents/loads/zero", gw.handleForceZeroLoads)

	r.GET("/assignments", gw.handleListAssignments)

	r.GET("/incidents", gw.handleListIncidents)
	r.GET("/incidents/:id", gw.handleGetIncident)
	r.POST("/incidents/:id/close", gw.handleCloseIncident)

	r.GET("/router/circuit", gw.handleCircuitState)

	r.GET("/metrics", gw.handleMetrics)

	r.GET("/audit/routing", gw.handleAuditRouting)
	r.GET("/audit/incidents", gw.handleAuditIncidents)

	r.GET("/ws/activity", gw.handleActivityWebsocket)

	return r
}

func (gw *Gateway) handleSubmitTicket(c *gin.Context) {
	var incoming models.IncomingTicket
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	accepted, err := gw.acceptTicket(c.Request.Context(), incoming)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticket intake temporarily unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, accepted)
}

// handleSubmitBatch accepts an array of tickets and publishes each in
// request order, returning the per-ticket acceptance results in the same
// order so callers can line up responses with their submitted array.
func (gw *Gateway) handleSubmitBatch(c *gin.Context) {
	var incoming []models.IncomingTicket
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted := make([]models.TicketAccepted, 0, len(incoming))
	for _, ticket := range incoming {
		result, err := gw.acceptTicket(c.Request.Context(), ticket)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticket intake temporarily unavailable"})
			return
		}
		accepted = append(accepted, result)
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// acceptTicket assigns IDs and publishes a single ticket through the
// breaker-protected durable queue, the shared path behind both the
// single-ticket and batch submission endpoints.
func (gw *Gateway) acceptTicket(ctx context.Context, incoming models.IncomingTicket) (models.TicketAccepted, error) {
	if incoming.TicketID == "" {
		incoming.TicketID = uuid.New().String()
	}
	jobID := uuid.New().String()

	err := gw.breakers.Execute(ctx, "tickets", func() error {
		return gw.nats.Publish(ctx, pipeline.JobSubject, incoming)
	})
	if err != nil {
		return models.TicketAccepted{}, err
	}

	if gw.metrics != nil {
		gw.metrics.IncTicketsAccepted()
	}

	return models.TicketAccepted{
		TicketID: incoming.TicketID,
		JobID:    jobID,
		Message:  "ticket accepted for processing",
	}, nil
}

func (gw *Gateway) handlePopNext(c *gin.Context) {
	ticket, ok, err := gw.pipeline.PopNext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue is empty"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (gw *Gateway) handlePeekNext(c *gin.Context) {
	ticket, ok, err := gw.queue.PeekNext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue is empty"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (gw *Gateway) handleQueueSize(c *gin.Context) {
	size, err := gw.queue.ProcessedSize(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": size})
}

func (gw *Gateway) handleQueueSnapshot(c *gin.Context) {
	tickets, err := gw.queue.ListSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (gw *Gateway) handleClearQueue(c *gin.Context) {
	if err := gw.pipeline.ClearQueue(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (gw *Gateway) handleActivity(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	c.JSON(http.StatusOK, gw.bus.GetRecent(limit))
}

func (gw *Gateway) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if snap, err := gw.router.GetCircuitState(c.Request.Context()); err == nil {
		body["circuit_breaker"] = snap
	}
	if gw.nats != nil {
		body["nats_connected"] = gw.nats.IsConnected()
	}
	c.JSON(http.StatusOK, body)
}

func (gw *Gateway) handleUrgencyScore(c *gin.Context) {
	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	score, err := gw.router.ScoreUrgency(c.Request.Context(), req.Subject+" "+req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"urgency_score":  score,
		"category":       router.Classify(req.Subject, req.Body),
		"priority_score": decimal.RoundToPriority(score),
	})
}

func (gw *Gateway) handleListAgents(c *gin.Context) {
	agentsList, err := gw.agents.ListOnlineAgents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agentsList)
}

func (gw *Gateway) handleRegisterAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := gw.agents.RegisterAgent(c.Request.Context(), agent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (gw *Gateway) handleReconcileLoads(c *gin.Context) {
	changed, err := gw.agents.ReconcileAgentLoads(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents_changed": changed})
}

func (gw *Gateway) handleForceZeroLoads(c *gin.Context) {
	zeroed, err := gw.agents.ForceZeroAllLoads(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents_zeroed": zeroed})
}

func (gw *Gateway) handleGetAgent(c *gin.Context) {
	agent, ok, err := gw.agents.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (gw *Gateway) handleAgentTickets(c *gin.Context) {
	agentID := c.Param("id")
	if _, ok, err := gw.agents.GetAgent(c.Request.Context(), agentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	tickets, err := gw.agents.TicketsForAgent(c.Request.Context(), agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (gw *Gateway) handleListAssignments(c *gin.Context) {
	assignments, err := gw.agents.ListAssignments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assignments)
}

func (gw *Gateway) handleListIncidents(c *gin.Context) {
	incidents, err := gw.dedup.ListIncidents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (gw *Gateway) handleGetIncident(c *gin.Context) {
	incident, ok, err := gw.dedup.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (gw *Gateway) handleCloseIncident(c *gin.Context) {
	id := c.Param("id")
	if _, ok, err := gw.dedup.GetIncident(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	if err := gw.dedup.CloseIncident(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (gw *Gateway) handleCircuitState(c *gin.Context) {
	snap, err := gw.router.GetCircuitState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (gw *Gateway) handleMetrics(c *gin.Context) {
	if gw.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gw.metrics.Snapshot())
}

func (gw *Gateway) handleAuditRouting(c *gin.Context) {
	records, err := gw.audit.ListRouting(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (gw *Gateway) handleAuditIncidents(c *gin.Context) {
	records, err := gw.audit.ListIncidents(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (gw *Gateway) handleActivityWebsocket(c *gin.Context) {
	conn, err := gw.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sent := make(map[time.Time]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, evt := range gw.bus.GetRecent(20) {
				if sent[evt.Timestamp] {
					continue
				}
				sent[evt.Timestamp] = true
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			}
		}
	}
}
