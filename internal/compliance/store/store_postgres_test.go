package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policykernel/internal/compliance/models"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
)

var instanceCols = []string{"id", "asset_id", "issuance_id", "template_id", "regime_id", "regime_version", "status",
	"rationale", "evidence_refs", "exception_reason", "requires_platform_ack", "platform_acknowledged",
	"platform_acknowledged_by", "platform_acknowledged_at", "platform_ack_reason", "created_at", "updated_at"}

func TestPostgresAppendAllMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	inst := models.NewRequired(id.InstanceID(uuid.New()), id.AssetID(uuid.New()), "t1", "mica", "1.0.0", false, time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requirement_instances")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "requirement_instances_asset_template_uniq"})
	mock.ExpectRollback()

	err = NewPostgres(db).AppendAll(context.Background(), []*models.RequirementInstance{inst})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	instID, assetID := uuid.New(), uuid.New()
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM requirement_instances WHERE id = $1")).
		WithArgs(instID.String()).
		WillReturnRows(sqlmock.NewRows(instanceCols).AddRow(
			instID.String(), assetID.String(), nil, "t1", "mica", "1.0.0", "SATISFIED",
			"", "{doc-1,doc-2}", "", true, true, "ops@platform", now, "reviewed", now, now,
		))

	inst, err := NewPostgres(db).FindByID(context.Background(), id.InstanceID(instID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSatisfied, inst.Status)
	assert.True(t, inst.IsAssetLevel())
	assert.Equal(t, []string{"doc-1", "doc-2"}, inst.EvidenceRefs)
	require.NotNil(t, inst.PlatformAcknowledgedAt)
	assert.Equal(t, now, *inst.PlatformAcknowledgedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM requirement_instances WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(instanceCols))

	_, err = NewPostgres(db).FindByID(context.Background(), id.InstanceID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestBuildWhere(t *testing.T) {
	assetID := id.AssetID(uuid.New())
	status := models.StatusRequired
	iss := id.IssuanceID(uuid.New())

	where, args := buildWhere(models.Filter{AssetID: &assetID, Status: &status})
	assert.Equal(t, " WHERE asset_id = $1 AND status = $2 AND issuance_id IS NULL", where)
	assert.Len(t, args, 2)

	where, args = buildWhere(models.Filter{AssetID: &assetID, Scope: models.ScopeAll})
	assert.Equal(t, " WHERE asset_id = $1", where)
	assert.Len(t, args, 1)

	where, _ = buildWhere(models.Filter{IssuanceID: &iss})
	assert.Equal(t, " WHERE issuance_id = $1", where)

	where, args = buildWhere(models.Filter{Scope: models.ScopeAll})
	assert.Empty(t, where)
	assert.Nil(t, args)
}
