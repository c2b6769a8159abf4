package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"policykernel/internal/authorization/models"
	"policykernel/internal/platform/postgres"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
)

const (
	requestColumns = `id, asset_id, holder_address, requested_limit, status, initiated_by, expires_at, created_at, updated_at`

	authorizationColumns = `id, asset_id, holder_address, request_id, currency, issuer_address, limit_amount,
	tx_hash, status, initiated_by, external, external_source, created_at, updated_at`
)

// PostgresStore relies on partial unique indexes for the one-pending-request
// and one-active-authorization rules; violations surface as ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.AuthorizationRequest) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO authorization_requests (`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(req.ID), uuid.UUID(req.AssetID), req.HolderAddress, req.RequestedLimit, string(req.Status),
		string(req.InitiatedBy), req.ExpiresAt, req.CreatedAt, req.UpdatedAt)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert authorization request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*models.AuthorizationRequest, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM authorization_requests WHERE id = $1`, uuid.UUID(reqID))
	return scanRequest(row)
}

func (s *PostgresStore) InvitedRequest(ctx context.Context, assetID id.AssetID, holder string) (*models.AuthorizationRequest, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM authorization_requests
		WHERE asset_id = $1 AND holder_address = $2 AND status = 'INVITED' FOR UPDATE`,
		uuid.UUID(assetID), holder)
	return scanRequest(row)
}

func (s *PostgresStore) UpdateRequest(ctx context.Context, req *models.AuthorizationRequest) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE authorization_requests SET status = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(req.ID), string(req.Status), req.UpdatedAt)
	return checkUpdated(res, err, "update authorization request")
}

func (s *PostgresStore) CreateAuthorization(ctx context.Context, auth *models.Authorization) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO authorizations (`+authorizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		authorizationArgs(auth)...)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert authorization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAuthorization(ctx context.Context, authID id.AuthorizationID) (*models.Authorization, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE id = $1`, uuid.UUID(authID))
	return scanAuthorization(row)
}

func (s *PostgresStore) FindByRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*models.Authorization, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE request_id = $1`, uuid.UUID(reqID))
	return scanAuthorization(row)
}

func (s *PostgresStore) ActiveAuthorization(ctx context.Context, assetID id.AssetID, holder string) (*models.Authorization, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations
		WHERE asset_id = $1 AND holder_address = $2 AND status <> 'TRUSTLINE_CLOSED' FOR UPDATE`,
		uuid.UUID(assetID), holder)
	return scanAuthorization(row)
}

func (s *PostgresStore) UpdateAuthorization(ctx context.Context, auth *models.Authorization) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE authorizations SET limit_amount = $2, tx_hash = $3, status = $4, updated_at = $5 WHERE id = $1`,
		uuid.UUID(auth.ID), auth.Limit, auth.TxHash, string(auth.Status), auth.UpdatedAt)
	return checkUpdated(res, err, "update authorization")
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO authorization_events (id, authorization_id, event, from_status, to_status, limit_amount, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, uuid.UUID(entry.AuthorizationID), string(entry.Event), string(entry.From), string(entry.To),
		entry.Limit, entry.Actor, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("append authorization event: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, authID id.AuthorizationID) ([]*models.HistoryEntry, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT id, event, from_status, to_status, limit_amount, actor, occurred_at
		FROM authorization_events WHERE authorization_id = $1 ORDER BY occurred_at, id`, uuid.UUID(authID))
	if err != nil {
		return nil, fmt.Errorf("list authorization events: %w", err)
	}
	defer rows.Close()
	out := []*models.HistoryEntry{}
	for rows.Next() {
		var (
			e               models.HistoryEntry
			event, from, to string
		)
		if err := rows.Scan(&e.ID, &event, &from, &to, &e.Limit, &e.Actor, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan authorization event: %w", err)
		}
		e.AuthorizationID = authID
		e.Event = models.Event(event)
		e.From = models.State(from)
		e.To = models.State(to)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func authorizationArgs(a *models.Authorization) []any {
	var reqID uuid.NullUUID
	if a.RequestID != nil {
		reqID = uuid.NullUUID{UUID: uuid.UUID(*a.RequestID), Valid: true}
	}
	return []any{
		uuid.UUID(a.ID), uuid.UUID(a.AssetID), a.HolderAddress, reqID, a.Currency, a.IssuerAddress, a.Limit,
		a.TxHash, string(a.Status), string(a.InitiatedBy), a.External, a.ExternalSource, a.CreatedAt, a.UpdatedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.AuthorizationRequest, error) {
	var (
		r                   models.AuthorizationRequest
		reqID, assetID      uuid.UUID
		status, initiatedBy string
	)
	err := row.Scan(&reqID, &assetID, &r.HolderAddress, &r.RequestedLimit, &status, &initiatedBy,
		&r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan authorization request: %w", err)
	}
	r.ID = id.AuthorizationRequestID(reqID)
	r.AssetID = id.AssetID(assetID)
	r.Status = models.RequestStatus(status)
	r.InitiatedBy = models.Initiator(initiatedBy)
	return &r, nil
}

func scanAuthorization(row scanner) (*models.Authorization, error) {
	var (
		a                   models.Authorization
		authID, assetID     uuid.UUID
		reqID               uuid.NullUUID
		status, initiatedBy string
	)
	err := row.Scan(&authID, &assetID, &a.HolderAddress, &reqID, &a.Currency, &a.IssuerAddress, &a.Limit,
		&a.TxHash, &status, &initiatedBy, &a.External, &a.ExternalSource, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan authorization: %w", err)
	}
	a.ID = id.AuthorizationID(authID)
	a.AssetID = id.AssetID(assetID)
	if reqID.Valid {
		r := id.AuthorizationRequestID(reqID.UUID)
		a.RequestID = &r
	}
	a.Status = models.State(status)
	a.InitiatedBy = models.Initiator(initiatedBy)
	return &a, nil
}

func checkUpdated(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
