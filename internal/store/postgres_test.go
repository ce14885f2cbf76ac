package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-stack/triage311/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testRecord()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO departments`).
		WithArgs(rec.Department).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO service_requests`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord_NoDepartment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testRecord()
	rec.Department = ""

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO service_requests`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM service_requests WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetRecord(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(recordColumns).AddRow(
		"rec-1", nil, "pothole on beacon st", false, true, "new",
		ptr("Public Works"), ptr("Pothole"), ptr("Public Works Department"),
		ptr("25 Beacon St"), nil, ptr("large pothole"), "high", nil,
		ptr("road maintenance"), nil, nil, nil, nil,
		[]byte(`{"triage":0.9,"validation":0.9,"classification":0.85,"overall":0.88}`),
		false, ptr("triage"), now,
	)

	mock.ExpectQuery(`SELECT .+ FROM service_requests WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(rows)

	rec, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Public Works", rec.Category)
	assert.Equal(t, model.PriorityHigh, rec.Priority)
	assert.InDelta(t, 0.88, rec.Confidence.Overall, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecordStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE service_requests SET status`).
		WithArgs("closed", "nonexistent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRecordStatus(context.Background(), "nonexistent", model.RecordStatusClosed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testRecord()
	rec.ExternalID = "101001"

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_service_requests"}, recordColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "service_requests" .* ON CONFLICT \("external_id"\) WHERE external_id IS NOT NULL DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.ImportRecords(context.Background(), []model.CanonicalRecord{*rec})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureDepartment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO departments`).
		WithArgs("Public Works Department", "Streets and sanitation").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureDepartment(context.Background(), "Public Works Department", "Streets and sanitation"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCategory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO categories`).
		WithArgs("Pothole", "Public Works Department").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureCategory(context.Background(), "Pothole", "Public Works Department"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr(s string) *string { return &s }
