package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"policykernel/internal/asset/models"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
)

// PostgresStore reads asset records owned by the registry schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRecord = `
	SELECT a.id, a.product_id, a.code, a.asset_class, a.ledger, a.issuer_address, a.status, a.updated_at,
	       p.organization_id, p.name, p.target_markets, p.distribution_type, p.investor_audience,
	       p.transfer_type, p.casp_involved, p.updated_at,
	       o.name, o.country, o.is_casp
	FROM assets a
	JOIN products p ON p.id = a.product_id
	JOIN organizations o ON o.id = p.organization_id
	WHERE a.id = $1
`

func (s *PostgresStore) Get(ctx context.Context, assetID id.AssetID) (*models.Record, error) {
	var (
		assetUUID, productUUID, orgUUID uuid.UUID
		class, ledger, status           string
		markets                         pq.StringArray
		r                               models.Record
	)
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, selectRecord, uuid.UUID(assetID)).Scan(
		&assetUUID, &productUUID, &r.Asset.Code, &class, &ledger, &r.Asset.IssuerAddress, &status, &r.Asset.UpdatedAt,
		&orgUUID, &r.Product.Name, &markets, &r.Product.DistributionType, &r.Product.InvestorAudience,
		&r.Product.TransferType, &r.Product.CASPInvolved, &r.Product.UpdatedAt,
		&r.Organization.Name, &r.Organization.Country, &r.Organization.IsCASP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load asset record: %w", err)
	}
	r.Asset.ID = id.AssetID(assetUUID)
	r.Asset.ProductID = id.ProductID(productUUID)
	r.Asset.Class = id.ParseAssetClass(class)
	r.Asset.Ledger = id.Ledger(ledger)
	r.Asset.Status = models.AssetStatus(status)
	r.Product.ID = id.ProductID(productUUID)
	r.Product.OrganizationID = id.OrganizationID(orgUUID)
	r.Product.TargetMarkets = []string(markets)
	r.Organization.ID = id.OrganizationID(orgUUID)
	return &r, nil
}

// Put upserts organization, product and asset rows in one transaction.
func (s *PostgresStore) Put(ctx context.Context, r *models.Record) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO organizations (id, name, country, is_casp) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, country = EXCLUDED.country, is_casp = EXCLUDED.is_casp`,
			uuid.UUID(r.Organization.ID), r.Organization.Name, r.Organization.Country, r.Organization.IsCASP,
		); err != nil {
			return fmt.Errorf("upsert organization: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO products (id, organization_id, name, target_markets, distribution_type,
				investor_audience, transfer_type, casp_involved, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, target_markets = EXCLUDED.target_markets,
				distribution_type = EXCLUDED.distribution_type, investor_audience = EXCLUDED.investor_audience,
				transfer_type = EXCLUDED.transfer_type, casp_involved = EXCLUDED.casp_involved,
				updated_at = EXCLUDED.updated_at`,
			uuid.UUID(r.Product.ID), uuid.UUID(r.Product.OrganizationID), r.Product.Name,
			pq.Array(r.Product.TargetMarkets), r.Product.DistributionType, r.Product.InvestorAudience,
			r.Product.TransferType, r.Product.CASPInvolved, r.Product.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO assets (id, product_id, code, asset_class, ledger, issuer_address, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, asset_class = EXCLUDED.asset_class,
				ledger = EXCLUDED.ledger, issuer_address = EXCLUDED.issuer_address,
				status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			uuid.UUID(r.Asset.ID), uuid.UUID(r.Asset.ProductID), r.Asset.Code, string(r.Asset.Class),
			string(r.Asset.Ledger), r.Asset.IssuerAddress, string(r.Asset.Status), r.Asset.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert asset: %w", err)
		}
		return nil
	})
}

// Touch reads, mutates and writes back a record inside one transaction.
func (s *PostgresStore) Touch(ctx context.Context, assetID id.AssetID, now time.Time, mutate func(*models.Record)) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		r, err := s.Get(ctx, assetID)
		if err != nil {
			return err
		}
		mutate(r)
		r.Asset.UpdatedAt = now
		return s.Put(ctx, r)
	})
}
