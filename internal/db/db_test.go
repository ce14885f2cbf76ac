package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "service_requests", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"service_requests"}, []string{"external_id", "description"}).WillReturnResult(3)

	rows := [][]any{{"101", "pothole"}, {"102", "graffiti"}, {"103", "streetlight"}}
	n, err := CopyFrom(context.Background(), mock, "service_requests", []string{"external_id", "description"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"service_requests"}, []string{"external_id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "service_requests", []string{"external_id"}, [][]any{{"101"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO service_requests")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "service_requests",
		Columns:      []string{"external_id", "status"},
		ConflictKeys: []string{"external_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "service_requests",
		ConflictKeys: []string{"external_id"},
	}, [][]any{{"101", "open"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "service_requests",
		Columns: []string{"external_id", "status"},
	}, [][]any{{"101", "open"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_service_requests"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_service_requests"}, []string{"external_id", "status"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "service_requests"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"101", "open"}, {"102", "closed"}}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "service_requests",
		Columns:      []string{"external_id", "status"},
		ConflictKeys: []string{"external_id"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_PartialIndexPredicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_service_requests"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_service_requests"}, []string{"external_id", "status"}).
		WillReturnResult(1)
	// The predicate of the partial unique index must be repeated in the
	// conflict target or Postgres rejects the statement.
	mock.ExpectExec(`ON CONFLICT \("external_id"\) WHERE external_id IS NOT NULL DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:         "service_requests",
		Columns:       []string{"external_id", "status"},
		ConflictKeys:  []string{"external_id"},
		ConflictWhere: "external_id IS NOT NULL",
	}, [][]any{{"101", "open"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"service_requests", `"service_requests"`},
		{"intake.requests", `"intake"."requests"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "category", "priority"`, quoteAndJoin([]string{"id", "category", "priority"}))
}
