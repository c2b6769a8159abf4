// Package store persists issuances.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"policykernel/internal/issuance/models"
	"policykernel/internal/platform/postgres"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
)

type keyRef struct {
	asset id.AssetID
	key   string
}

type InMemoryStore struct {
	mu        sync.RWMutex
	issuances map[id.IssuanceID]*models.Issuance
	byKey     map[keyRef]id.IssuanceID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		issuances: make(map[id.IssuanceID]*models.Issuance),
		byKey:     make(map[keyRef]id.IssuanceID),
	}
}

// Create fails with ErrConflict on a duplicate id or on an idempotency key
// already used for the same asset.
func (s *InMemoryStore) Create(_ context.Context, iss *models.Issuance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issuances[iss.ID]; ok {
		return sentinel.ErrConflict
	}
	ref := keyRef{asset: iss.AssetID, key: iss.IdempotencyKey}
	if iss.IdempotencyKey != "" {
		if _, ok := s.byKey[ref]; ok {
			return sentinel.ErrConflict
		}
		s.byKey[ref] = iss.ID
	}
	s.issuances[iss.ID] = iss.Clone()
	return nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, assetID id.AssetID, key string) (*models.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issID, ok := s.byKey[keyRef{asset: assetID, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.issuances[issID].Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, issuanceID id.IssuanceID) (*models.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iss, ok := s.issuances[issuanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return iss.Clone(), nil
}

// ListByAsset returns issuances newest first.
func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*models.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Issuance{}
	for _, iss := range s.issuances {
		if iss.AssetID == assetID {
			out = append(out, iss.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

const issuanceColumns = `id, asset_id, holder_address, amount, status, created_by, created_at, idempotency_key, request_hash`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, iss *models.Issuance) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO issuances (`+issuanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(iss.ID), uuid.UUID(iss.AssetID), iss.HolderAddress, iss.Amount, string(iss.Status),
		iss.CreatedBy, iss.CreatedAt, iss.IdempotencyKey, iss.RequestHash)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert issuance: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, issuanceID id.IssuanceID) (*models.Issuance, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE id = $1`, uuid.UUID(issuanceID))
	return scanIssuance(row)
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, assetID id.AssetID, key string) (*models.Issuance, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE asset_id = $1 AND idempotency_key = $2`,
		uuid.UUID(assetID), key)
	return scanIssuance(row)
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Issuance, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE asset_id = $1 ORDER BY created_at DESC, id`,
		uuid.UUID(assetID))
	if err != nil {
		return nil, fmt.Errorf("list issuances: %w", err)
	}
	defer rows.Close()
	out := []*models.Issuance{}
	for rows.Next() {
		iss, err := scanIssuance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssuance(row scanner) (*models.Issuance, error) {
	var (
		iss            models.Issuance
		issID, assetID uuid.UUID
		status         string
	)
	err := row.Scan(&issID, &assetID, &iss.HolderAddress, &iss.Amount, &status, &iss.CreatedBy, &iss.CreatedAt,
		&iss.IdempotencyKey, &iss.RequestHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan issuance: %w", err)
	}
	iss.ID = id.IssuanceID(issID)
	iss.AssetID = id.AssetID(assetID)
	iss.Status = models.Status(status)
	return &iss, nil
}
