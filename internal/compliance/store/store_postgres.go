package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"policykernel/internal/compliance/models"
	"policykernel/internal/platform/postgres"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
)

const instanceColumns = `id, asset_id, issuance_id, template_id, regime_id, regime_version, status,
	rationale, evidence_refs, exception_reason, requires_platform_ack, platform_acknowledged,
	platform_acknowledged_by, platform_acknowledged_at, platform_ack_reason, created_at, updated_at`

// PostgresStore persists instances in requirement_instances. The partial
// unique index on (asset_id, template_id) keeps re-evaluation from creating
// duplicates even when two evaluations race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AppendAll(ctx context.Context, instances []*models.RequirementInstance) error {
	if len(instances) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		const query = `INSERT INTO requirement_instances (` + instanceColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
		for _, inst := range instances {
			if _, err := exec.ExecContext(ctx, query, instanceArgs(inst)...); err != nil {
				if postgres.IsUniqueViolation(err, "") {
					return sentinel.ErrConflict
				}
				return fmt.Errorf("insert requirement instance: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, instanceID id.InstanceID) (*models.RequirementInstance, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM requirement_instances WHERE id = $1`, uuid.UUID(instanceID))
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find requirement instance: %w", err)
	}
	return inst, nil
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM requirement_instances
		WHERE asset_id = $1 AND issuance_id IS NULL
		ORDER BY created_at, template_id, id`, uuid.UUID(assetID))
	if err != nil {
		return nil, fmt.Errorf("list requirement instances: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter, page models.Page) (*models.ListResult, error) {
	page = page.Normalize()
	where, args := buildWhere(filter)
	exec := txcontext.Exec(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT count(*) FROM requirement_instances`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count requirement instances: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM requirement_instances%s ORDER BY created_at, template_id, id LIMIT $%d OFFSET $%d`,
		instanceColumns, where, len(args)-1, len(args))
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requirement instances: %w", err)
	}
	defer rows.Close()
	items, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.RequirementInstance{}
	}
	return &models.ListResult{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and writes back.
func (s *PostgresStore) Execute(ctx context.Context, instanceID id.InstanceID, validate func(*models.RequirementInstance) error, mutate func(*models.RequirementInstance)) (*models.RequirementInstance, error) {
	var out *models.RequirementInstance
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+instanceColumns+` FROM requirement_instances WHERE id = $1 FOR UPDATE`, uuid.UUID(instanceID))
		inst, err := scanInstance(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock requirement instance: %w", err)
		}
		if err := validate(inst); err != nil {
			return err
		}
		mutate(inst)
		if _, err := exec.ExecContext(ctx, `UPDATE requirement_instances SET
				status = $2, rationale = $3, evidence_refs = $4, exception_reason = $5,
				platform_acknowledged = $6, platform_acknowledged_by = $7, platform_acknowledged_at = $8,
				platform_ack_reason = $9, updated_at = $10
			WHERE id = $1`,
			uuid.UUID(inst.ID), string(inst.Status), inst.Rationale, pq.Array(inst.EvidenceRefs), inst.ExceptionReason,
			inst.PlatformAcknowledged, inst.PlatformAcknowledgedBy, nullTime(inst.PlatformAcknowledgedAt),
			inst.PlatformAcknowledgmentReason, inst.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update requirement instance: %w", err)
		}
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildWhere(f models.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.AssetID != nil {
		add("asset_id = $%d", uuid.UUID(*f.AssetID))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	switch {
	case f.IssuanceID != nil:
		add("issuance_id = $%d", uuid.UUID(*f.IssuanceID))
	case f.Scope != models.ScopeAll:
		clauses = append(clauses, "issuance_id IS NULL")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func instanceArgs(inst *models.RequirementInstance) []any {
	var issuance uuid.NullUUID
	if inst.IssuanceID != nil {
		issuance = uuid.NullUUID{UUID: uuid.UUID(*inst.IssuanceID), Valid: true}
	}
	refs := inst.EvidenceRefs
	if refs == nil {
		refs = []string{}
	}
	return []any{
		uuid.UUID(inst.ID), uuid.UUID(inst.AssetID), issuance, inst.TemplateID, inst.RegimeID, inst.RegimeVersion,
		string(inst.Status), inst.Rationale, pq.Array(refs), inst.ExceptionReason, inst.RequiresPlatformAck,
		inst.PlatformAcknowledged, inst.PlatformAcknowledgedBy, nullTime(inst.PlatformAcknowledgedAt),
		inst.PlatformAcknowledgmentReason, inst.CreatedAt, inst.UpdatedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*models.RequirementInstance, error) {
	var (
		inst            models.RequirementInstance
		instID, assetID uuid.UUID
		issuance        uuid.NullUUID
		status          string
		refs            pq.StringArray
		acknowledgedAt  sql.NullTime
	)
	if err := row.Scan(&instID, &assetID, &issuance, &inst.TemplateID, &inst.RegimeID, &inst.RegimeVersion, &status,
		&inst.Rationale, &refs, &inst.ExceptionReason, &inst.RequiresPlatformAck, &inst.PlatformAcknowledged,
		&inst.PlatformAcknowledgedBy, &acknowledgedAt, &inst.PlatformAcknowledgmentReason, &inst.CreatedAt, &inst.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inst.ID = id.InstanceID(instID)
	inst.AssetID = id.AssetID(assetID)
	if issuance.Valid {
		iss := id.IssuanceID(issuance.UUID)
		inst.IssuanceID = &iss
	}
	inst.Status = models.Status(status)
	if len(refs) > 0 {
		inst.EvidenceRefs = []string(refs)
	}
	if acknowledgedAt.Valid {
		at := acknowledgedAt.Time
		inst.PlatformAcknowledgedAt = &at
	}
	return &inst, nil
}

func scanAll(rows *sql.Rows) ([]*models.RequirementInstance, error) {
	var out []*models.RequirementInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan requirement instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
