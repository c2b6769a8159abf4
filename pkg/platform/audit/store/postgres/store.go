package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "policykernel/pkg/platform/audit"
	txcontext "policykernel/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// published to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Timestamp string            `json:"timestamp"`
	AssetID   string            `json:"asset_id,omitempty"`
	Subject   string            `json:"subject"`
	Action    string            `json:"action"`
	Decision  string            `json:"decision,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID,
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		AssetID:   event.AssetID,
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		Details:   event.Details,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID
	if event.AssetID != "" {
		aggregateType = "asset"
		aggregateID = event.AssetID
	}

	const query = `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// FetchPending locks up to limit unpublished rows for the duration of the
// caller's transaction. SKIP LOCKED lets several relays run side by side.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const query = `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkPublished stamps published_at on the given rows.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	const query = `UPDATE outbox SET published_at = $2 WHERE id = $1`
	exec := txcontext.Exec(ctx, s.db)
	for _, id := range ids {
		if _, err := exec.ExecContext(ctx, query, id, at); err != nil {
			return fmt.Errorf("mark outbox entry %s published: %w", id, err)
		}
	}
	return nil
}

// DB exposes the handle so the relay can open its own transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}
