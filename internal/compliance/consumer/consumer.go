// Package consumer re-evaluates assets when the asset registry publishes a
// change to an asset or its product.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"policykernel/internal/compliance/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/requestcontext"
)

// Client is the subset of *kgo.Client the consumer uses.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, assetID id.AssetID, productID id.ProductID) (*service.EvaluationResult, error)
}

// AssetChanged is the payload published on the asset events topic.
type AssetChanged struct {
	AssetID   string `json:"assetId"`
	ProductID string `json:"productId,omitempty"`
	Change    string `json:"change"`
}

// Consumer polls asset change events and triggers evaluation. Offsets are
// committed after each batch; failed evaluations are logged and picked up by
// the next change or an explicit evaluate call.
type Consumer struct {
	client    Client
	evaluator Evaluator
	logger    *slog.Logger
}

func New(client Client, evaluator Evaluator, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, evaluator: evaluator, logger: logger}
}

// Run consumes until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		c.HandleRecords(ctx, records)
		if err := c.client.CommitRecords(ctx, records...); err != nil {
			c.logger.ErrorContext(ctx, "failed to commit asset events", "error", err)
		}
	}
}

// HandleRecords evaluates every asset named in records once, in first-seen
// order. It returns how many evaluations succeeded.
func (c *Consumer) HandleRecords(ctx context.Context, records []*kgo.Record) int {
	seen := make(map[id.AssetID]bool)
	ok := 0
	for _, rec := range records {
		evt, assetID, err := decode(rec.Value)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed asset event",
				"topic", rec.Topic,
				"offset", rec.Offset,
				"error", err,
			)
			continue
		}
		if seen[assetID] {
			continue
		}
		seen[assetID] = true

		evalCtx := requestcontext.WithRequestID(ctx, fmt.Sprintf("%s/%d/%d", rec.Topic, rec.Partition, rec.Offset))
		res, err := c.evaluator.Evaluate(evalCtx, assetID, id.ProductID{})
		if err != nil {
			level := slog.LevelError
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				level = slog.LevelWarn
			}
			c.logger.Log(evalCtx, level, "asset re-evaluation failed",
				"request_id", requestcontext.RequestID(evalCtx),
				"asset_id", assetID.String(),
				"change", evt.Change,
				"error", err,
			)
			continue
		}
		ok++
		c.logger.InfoContext(evalCtx, "asset re-evaluated",
			"request_id", requestcontext.RequestID(evalCtx),
			"asset_id", assetID.String(),
			"change", evt.Change,
			"created", len(res.Created),
		)
	}
	return ok
}

func decode(value []byte) (AssetChanged, id.AssetID, error) {
	var evt AssetChanged
	if err := json.Unmarshal(value, &evt); err != nil {
		return evt, id.AssetID{}, fmt.Errorf("decode asset event: %w", err)
	}
	assetID, err := id.ParseAssetID(evt.AssetID)
	if err != nil {
		return evt, id.AssetID{}, err
	}
	return evt, assetID, nil
}
