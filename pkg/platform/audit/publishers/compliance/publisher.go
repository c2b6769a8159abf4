// Package compliance provides a fail-closed audit publisher for regulatory events.
//
// Events are written synchronously to the audit store (the outbox when backed
// by Postgres). If the write fails, an error is returned and the calling
// operation MUST fail: a requirement status change or authorization
// transition without its audit record is not allowed to commit.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "policykernel/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes an event to the audit store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.AssetID == "" {
		return fmt.Errorf("audit event requires AssetID")
	}
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to persist audit event",
				"action", event.Action,
				"asset_id", event.AssetID,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		p.metrics.observe(event.Action, "failure", time.Since(start))
		return fmt.Errorf("persist audit event: %w", err)
	}

	p.metrics.observe(event.Action, "success", time.Since(start))
	return nil
}
