package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	authorizationhandler "policykernel/internal/authorization/handler"
	"policykernel/internal/authorization/invite"
	authorizationmetrics "policykernel/internal/authorization/metrics"
	authorizationservice "policykernel/internal/authorization/service"
	"policykernel/internal/compliance/consumer"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	compliancehandler "policykernel/internal/compliance/handler"
	compliancemetrics "policykernel/internal/compliance/metrics"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	complianceservice "policykernel/internal/compliance/service"
	drafthandler "policykernel/internal/draft/handler"
	draftservice "policykernel/internal/draft/service"
	"policykernel/internal/enforcement"
	enforcementhandler "policykernel/internal/enforcement/handler"
	"policykernel/internal/export"
	exporthandler "policykernel/internal/export/handler"
	httpapi "policykernel/internal/http"
	issuancehandler "policykernel/internal/issuance/handler"
	issuancemetrics "policykernel/internal/issuance/metrics"
	issuanceservice "policykernel/internal/issuance/service"
	"policykernel/internal/platform/config"
	"policykernel/internal/platform/httpserver"
	"policykernel/internal/platform/kafka"
	"policykernel/internal/platform/logger"
	"policykernel/internal/platform/metrics"
	auditpublisher "policykernel/pkg/platform/audit/publishers/compliance"
	"policykernel/pkg/platform/audit/outbox"
	"policykernel/pkg/platform/middleware/auth"
)

// main loads configuration and hands off to run. Business logic lives in the
// internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("policy kernel stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := predicate.NewEngine()
	if err != nil {
		return err
	}
	regimes, err := regime.NewDefaultRegistry(engine, cfg.RegimePackPath)
	if err != nil {
		return err
	}

	publisher := auditpublisher.New(b.audit,
		auditpublisher.WithLogger(log),
		auditpublisher.WithMetrics(auditpublisher.NewMetrics()),
	)

	compliance := complianceservice.New(facts.NewBuilder(b.assets), regimes, evaluator.New(engine), b.compliance,
		complianceservice.WithLogger(log),
		complianceservice.WithAuditPublisher(publisher),
		complianceservice.WithMetrics(compliancemetrics.New()),
		complianceservice.WithTx(b.tx),
	)
	gate := enforcement.NewGate(compliance)

	authorizations := authorizationservice.New(b.authorizations, gate,
		invite.NewSigner(cfg.Auth.InviteSigningKey, cfg.Auth.Issuer, cfg.PublicBaseURL), b.inviteMarker,
		authorizationservice.WithLogger(log),
		authorizationservice.WithAuditPublisher(publisher),
		authorizationservice.WithMetrics(authorizationmetrics.New()),
		authorizationservice.WithTx(b.tx),
		authorizationservice.WithInviteTTL(cfg.InviteTTL),
	)

	issuances := issuanceservice.New(b.issuances, compliance, gate, authorizations, b.idempotency,
		issuanceservice.WithLogger(log),
		issuanceservice.WithAuditPublisher(publisher),
		issuanceservice.WithMetrics(issuancemetrics.New()),
		issuanceservice.WithTx(b.tx),
		issuanceservice.WithIdempotencyTTL(cfg.IdempotencyTTL),
	)

	drafts := draftservice.New(b.drafts, b.assets,
		draftservice.WithTTL(cfg.DraftTTL),
		draftservice.WithLogger(log),
		draftservice.WithAuditPublisher(publisher),
	)

	router := httpapi.NewRouter(httpapi.Config{
		Validator: auth.NewJWTValidator([]byte(cfg.Auth.JWTSigningKey), cfg.Auth.Issuer, cfg.Auth.Audience),
		Logger:    log,
		Metrics:   metrics.New(),
		Checks:    b.checks,
	},
		compliancehandler.New(compliance, log),
		enforcementhandler.New(gate, log),
		authorizationhandler.New(authorizations, log),
		issuancehandler.New(issuances, log),
		exporthandler.New(export.New(compliance, export.WithLogger(log)), log),
		drafthandler.New(drafts, log),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(ctx, httpserver.New(cfg.Addr, router), log)
	})

	if cfg.Kafka.Enabled() {
		if err := startKafka(ctx, g, cfg, b, compliance, log); err != nil {
			return err
		}
	} else {
		log.Info("KAFKA_BROKERS not set, audit events stay in the store and asset events are not consumed")
	}

	return g.Wait()
}

// startKafka runs the outbox relay (Postgres only) and the asset change
// consumer alongside the HTTP server.
func startKafka(ctx context.Context, g *errgroup.Group, cfg config.Server, b *backends, evaluations consumer.Evaluator, log *slog.Logger) error {
	if b.outbox != nil {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka.AuditTopic); err != nil {
			producer.Close()
			return err
		}
		relay := outbox.New(b.outbox, producer, cfg.Kafka.AuditTopic,
			outbox.WithBatchSize(cfg.Kafka.OutboxBatchSize),
			outbox.WithInterval(cfg.Kafka.OutboxInterval),
			outbox.WithLogger(log),
		)
		g.Go(func() error {
			defer producer.Close()
			return relay.Run(ctx)
		})
	}

	client, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.AssetEventsTopic)
	if err != nil {
		return err
	}
	g.Go(func() error {
		defer client.Close()
		return consumer.New(client, evaluations, log).Run(ctx)
	})
	return nil
}
