// Package outbox relays audit events from the Postgres outbox table to Kafka.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"policykernel/pkg/platform/audit/store/postgres"
	txcontext "policykernel/pkg/platform/tx"
)

// Producer is the subset of *kgo.Client the relay uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

const (
	defaultBatchSize = 100
	defaultInterval  = 2 * time.Second
)

// Relay publishes pending outbox rows. Rows are marked published only after
// Kafka acknowledged the whole batch, so delivery is at-least-once.
type Relay struct {
	store    *postgres.Store
	producer Producer
	topic    string
	batch    int
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func New(store *postgres.Store, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		producer: producer,
		topic:    topic,
		batch:    defaultBatchSize,
		interval: defaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relayed", "count", n)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	err := txcontext.Run(ctx, r.store.DB(), func(ctx context.Context) error {
		entries, err := r.store.FetchPending(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			records = append(records, &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
				},
			})
			ids = append(ids, e.ID)
		}
		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox batch: %w", err)
		}
		if err := r.store.MarkPublished(ctx, ids, time.Now()); err != nil {
			return err
		}
		relayed = len(entries)
		return nil
	})
	return relayed, err
}
