// Command gateway serves the ticket broker's HTTP surface: ticket
// submission, queue and agent introspection, incident and circuit status,
// and the activity websocket stream.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsline/ticketbroker/internal/activity"
	"github.com/opsline/ticketbroker/internal/agents"
	"github.com/opsline/ticketbroker/internal/audit"
	"github.com/opsline/ticketbroker/internal/config"
	"github.com/opsline/ticketbroker/internal/dedup"
	"github.com/opsline/ticketbroker/internal/gateway"
	"github.com/opsline/ticketbroker/internal/metrics"
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
		log.Fatalf("gateway: connect redis: %v", err)
	}
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		log.Fatalf("gateway: ping redis: %v", err)
	}

	reg := agents.New(s)
	if err := reg.SeedMockAgents(ctx); err != nil {
		log.Fatalf("gateway: seed mock agents: %v", err)
	}

	var dedupLock *dedup.Lock
	if cfg.DedupLockEnabled {
		dedupLock, err = dedup.NewLock(cfg.EtcdEndpoints)
		if err != nil {
			log.Fatalf("gateway: connect etcd: %v", err)
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
		log.Fatalf("gateway: open audit trail: %v", err)
	}
	defer auditTrail.Close()

	exporter := metrics.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.MetricsExportInterval)
	go exporter.Run(ctx)

	nc, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           "ticketbroker-gateway",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("gateway: connect nats: %v", err)
	}
	defer nc.Close()

	// The gateway only ever publishes jobs and reads shared Redis state
	// directly (PopNext/ClearQueue); actual job processing happens in
	// cmd/worker, so no worker pool is started here.
	pl := pipeline.New(modelRouter, dedupEngine, reg, q, bus, notifier, auditTrail, cfg.RoutingLoadPenaltyFactor, cfg.WorkerConcurrency)

	gw := gateway.New(pl, q, reg, dedupEngine, modelRouter, bus, exporter, auditTrail, nc, cfg.RateLimitPerSecond)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: gw.Engine(),
	}

	go func() {
		log.Printf("gateway: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("gateway: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway: shutdown error: %v", err)
	}
}
