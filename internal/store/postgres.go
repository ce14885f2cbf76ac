package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civic-stack/triage311/internal/db"
	"github.com/civic-stack/triage311/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations.
var preparedStatements = map[string]string{
	"get_record":    `SELECT ` + recordColumnList + ` FROM service_requests WHERE id = $1`,
	"update_status": `UPDATE service_requests SET status = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems needing
// direct query access (e.g., bulk imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const recordColumnList = `id, external_id, raw_input, is_emergency, is_valid, status, category, subcategory, department, address, location_details, description, priority, notes, reason, latitude, longitude, geocode_source, geocode_quality, confidence, needs_review, source, created_at`

// recordColumns is the column order used by inserts and bulk imports.
var recordColumns = []string{
	"id", "external_id", "raw_input", "is_emergency", "is_valid", "status",
	"category", "subcategory", "department", "address", "location_details",
	"description", "priority", "notes", "reason", "latitude", "longitude",
	"geocode_source", "geocode_quality", "confidence", "needs_review",
	"source", "created_at",
}

// recordRow flattens a record into the recordColumns order.
func recordRow(rec *model.CanonicalRecord) ([]any, error) {
	confJSON, err := json.Marshal(rec.Confidence)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal confidence")
	}
	return []any{
		rec.ID, nullIfEmpty(rec.ExternalID), rec.RawInput, rec.IsEmergency,
		rec.IsValid, string(rec.Status), rec.Category, rec.Subcategory,
		rec.Department, rec.Address, rec.LocationDetails, rec.Description,
		string(rec.Priority), rec.Notes, rec.Reason, rec.Latitude,
		rec.Longitude, rec.GeocodeSource, rec.GeocodeQuality, confJSON,
		rec.NeedsReview, rec.Source, rec.CreatedAt,
	}, nil
}

// nullIfEmpty maps "" to NULL so the partial unique index on
// external_id ignores pipeline-originated records.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS departments (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL UNIQUE,
	department TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS service_requests (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id      TEXT,
	raw_input        TEXT NOT NULL,
	is_emergency     BOOLEAN NOT NULL DEFAULT false,
	is_valid         BOOLEAN NOT NULL DEFAULT true,
	status           TEXT NOT NULL DEFAULT 'new',
	category         TEXT,
	subcategory      TEXT,
	department       TEXT,
	address          TEXT,
	location_details TEXT,
	description      TEXT,
	priority         TEXT NOT NULL DEFAULT 'medium',
	notes            TEXT,
	reason           TEXT,
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	geocode_source   TEXT,
	geocode_quality  TEXT,
	confidence       JSONB,
	needs_review     BOOLEAN NOT NULL DEFAULT false,
	source           TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_service_requests_external_id ON service_requests(external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_service_requests_status ON service_requests(status);
CREATE INDEX IF NOT EXISTS idx_service_requests_department ON service_requests(department);
CREATE INDEX IF NOT EXISTS idx_service_requests_priority ON service_requests(priority);
CREATE INDEX IF NOT EXISTS idx_service_requests_needs_review ON service_requests(needs_review) WHERE needs_review;
CREATE INDEX IF NOT EXISTS idx_service_requests_created_at ON service_requests(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRecord persists a record and its department reference atomically.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec *model.CanonicalRecord) error {
	row, err := recordRow(rec)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save record")
	}
	defer tx.Rollback(ctx)

	if rec.Department != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO departments (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			rec.Department,
		); err != nil {
			return eris.Wrap(err, "postgres: ensure department for record")
		}
	}

	placeholders := make([]string, len(recordColumns))
	for i := range recordColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO service_requests (%s) VALUES (%s)",
		recordColumnList, strings.Join(placeholders, ", "),
	)
	if _, err := tx.Exec(ctx, insertSQL, row...); err != nil {
		return eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save record")
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.CanonicalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumnList+` FROM service_requests WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.CanonicalRecord, error) {
	query := `SELECT ` + recordColumnList + ` FROM service_requests WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Department != "" {
		query += fmt.Sprintf(` AND department = $%d`, argIdx)
		args = append(args, filter.Department)
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	if filter.NeedsReview != nil {
		query += fmt.Sprintf(` AND needs_review = $%d`, argIdx)
		args = append(args, *filter.NeedsReview)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.CanonicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE service_requests SET status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", id)
	}
	return nil
}

// ImportRecords bulk-upserts historical records keyed on external_id.
func (s *PostgresStore) ImportRecords(ctx context.Context, recs []model.CanonicalRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for i := range recs {
		row, err := recordRow(&recs[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "service_requests",
		Columns:      recordColumns,
		ConflictKeys: []string{"external_id"},
		// The unique index on external_id is partial; repeat its predicate
		// so Postgres can pick it as the conflict arbiter.
		ConflictWhere: "external_id IS NOT NULL",
		UpdateCols: []string{
			"raw_input", "is_emergency", "is_valid", "status", "category",
			"subcategory", "department", "address", "location_details",
			"description", "priority", "notes", "reason", "latitude",
			"longitude", "confidence", "needs_review", "source",
		},
	}, rows)
}

func (s *PostgresStore) EnsureDepartment(ctx context.Context, name, description string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO departments (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`,
		name, description,
	)
	return eris.Wrapf(err, "postgres: ensure department %s", name)
}

func (s *PostgresStore) EnsureCategory(ctx context.Context, name, department string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (name, department) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET department = EXCLUDED.department`,
		name, department,
	)
	return eris.Wrapf(err, "postgres: ensure category %s", name)
}

// scanRecord reads one record from a pgx row.
func scanRecord(row pgx.Row) (*model.CanonicalRecord, error) {
	var rec model.CanonicalRecord
	var externalID, category, subcategory, department, address *string
	var locationDetails, description, notes, reason, geoSource, geoQuality, source *string
	var confJSON []byte

	err := row.Scan(
		&rec.ID, &externalID, &rec.RawInput, &rec.IsEmergency, &rec.IsValid,
		&rec.Status, &category, &subcategory, &department, &address,
		&locationDetails, &description, &rec.Priority, &notes, &reason,
		&rec.Latitude, &rec.Longitude, &geoSource, &geoQuality, &confJSON,
		&rec.NeedsReview, &source, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ExternalID = deref(externalID)
	rec.Category = deref(category)
	rec.Subcategory = deref(subcategory)
	rec.Department = deref(department)
	rec.Address = deref(address)
	rec.LocationDetails = deref(locationDetails)
	rec.Description = deref(description)
	rec.Notes = deref(notes)
	rec.Reason = deref(reason)
	rec.GeocodeSource = deref(geoSource)
	rec.GeocodeQuality = deref(geoQuality)
	rec.Source = deref(source)

	if len(confJSON) > 0 {
		if err := json.Unmarshal(confJSON, &rec.Confidence); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal confidence")
		}
	}
	return &rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
