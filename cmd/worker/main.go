// Command worker consumes tickets published to the durable NATS job queue
// and runs them through the full ten-step processing pipeline. Multiple
// worker processes share the "ticket-workers" queue group so tickets
// load-balance across them instead of fanning out to every worker.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opsline/ticketbroker/internal/activity"
	"github.com/opsline/ticketbroker/internal/agents"
	"github.com/opsline/ticketbroker/internal/audit"
	"github.com/opsline/ticketbroker/internal/config"
	"github.com/opsline/ticketbroker/internal/dedup"
	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/pipeline"
	"github.com/opsline/ticketbroker/internal/queue"
	"github.com/opsline/ticketbroker/internal/router"
	"github.com/opsline/ticketbroker/internal/store"
	"github.com/opsline/ticketbroker/internal/webhook"
	"github.com/opsline/ticketbroker/pkg/messaging"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("worker: connect redis: %v", err)
	}
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		log.Fatalf("worker: ping redis: %v", err)
	}

	reg := agents.New(s)
	if err := reg.SeedMockAgents(ctx); err != nil {
		log.Fatalf("worker: seed mock agents: %v", err)
	}

	var dedupLock *dedup.Lock
	if cfg.DedupLockEnabled {
		dedupLock, err = dedup.NewLock(cfg.EtcdEndpoints)
		if err != nil {
			log.Fatalf("worker: connect etcd: %v", err)
		}
		defer dedupLock.Close()
	}

	dedupEngine := dedup.New(s, dedupLock, cfg.DedupWindowSeconds, cfg.DedupSimThreshold, cfg.DedupMinCount)
	q := queue.New(s)
	bus := activity.New(s)
	go bus.Run(ctx)

	transformer := &router.StubTransformer{}
	modelRouter := router.New(s, transformer, cfg.CircuitCooldownSeconds, cfg.CircuitHalfOpenProbes)

	notifier := webhook.New(cfg.WebhookURL)

	auditTrail, err := audit.Open(cfg.AuditDatabaseURL)
	if err != nil {
		log.Fatalf("worker: open audit trail: %v", err)
	}
	defer auditTrail.Close()

	pl := pipeline.New(modelRouter, dedupEngine, reg, q, bus, notifier, auditTrail, cfg.RoutingLoadPenaltyFactor, cfg.WorkerConcurrency)

	nc, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           "ticketbroker-worker",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("worker: connect nats: %v", err)
	}
	defer nc.Close()

	err = nc.QueueSubscribe(pipeline.JobSubject, pipeline.JobQueueGroup, func(msg *nats.Msg) {
		var incoming models.IncomingTicket
		if err := json.Unmarshal(msg.Data, &incoming); err != nil {
			log.Printf("worker: malformed job payload: %v", err)
			return
		}
		pl.Submit(incoming)
	})
	if err != nil {
		log.Fatalf("worker: subscribe to job queue: %v", err)
	}

	log.Printf("worker: consuming %s (group=%s) with %d goroutines", pipeline.JobSubject, pipeline.JobQueueGroup, cfg.WorkerConcurrency)

	go func() {
		if err := pl.Run(ctx); err != nil {
			log.Printf("worker: pipeline stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("worker: shutting down")
}
