package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civic-stack/triage311/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS departments (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	department TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS service_requests (
	id               TEXT PRIMARY KEY,
	external_id      TEXT UNIQUE,
	raw_input        TEXT NOT NULL,
	is_emergency     INTEGER NOT NULL DEFAULT 0,
	is_valid         INTEGER NOT NULL DEFAULT 1,
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
	latitude         REAL,
	longitude        REAL,
	geocode_source   TEXT,
	geocode_quality  TEXT,
	confidence       TEXT,
	needs_review     INTEGER NOT NULL DEFAULT 0,
	source           TEXT,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_service_requests_status ON service_requests(status);
CREATE INDEX IF NOT EXISTS idx_service_requests_department ON service_requests(department);
CREATE INDEX IF NOT EXISTS idx_service_requests_priority ON service_requests(priority);
CREATE INDEX IF NOT EXISTS idx_service_requests_created_at ON service_requests(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteInsertSQL builds the parameterized insert reused by SaveRecord
// and ImportRecords.
var sqliteInsertSQL = fmt.Sprintf(
	"INSERT INTO service_requests (%s) VALUES (%s)",
	recordColumnList,
	strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", "),
)

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.CanonicalRecord) error {
	row, err := recordRow(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save record")
	}
	defer tx.Rollback()

	if rec.Department != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO departments (id, name) VALUES (lower(hex(randomblob(16))), ?) ON CONFLICT (name) DO NOTHING`,
			rec.Department,
		); err != nil {
			return eris.Wrap(err, "sqlite: ensure department for record")
		}
	}

	if _, err := tx.ExecContext(ctx, sqliteInsertSQL, row...); err != nil {
		return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumnList+` FROM service_requests WHERE id = ?`, id)

	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.CanonicalRecord, error) {
	query := `SELECT ` + recordColumnList + ` FROM service_requests WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Department != "" {
		query += ` AND department = ?`
		args = append(args, filter.Department)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []model.CanonicalRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE service_requests SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("record not found: %s", id)
	}
	return nil
}

// ImportRecords inserts records in a single transaction, replacing rows
// that share an external ID.
func (s *SQLiteStore) ImportRecords(ctx context.Context, recs []model.CanonicalRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	upsertSQL := strings.Replace(sqliteInsertSQL, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	var count int64
	for i := range recs {
		row, err := recordRow(&recs[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import record %s", recs[i].ExternalID)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return count, nil
}

func (s *SQLiteStore) EnsureDepartment(ctx context.Context, name, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO departments (id, name, description) VALUES (lower(hex(randomblob(16))), ?, ?)
		 ON CONFLICT (name) DO UPDATE SET description = excluded.description`,
		name, description,
	)
	return eris.Wrapf(err, "sqlite: ensure department %s", name)
}

func (s *SQLiteStore) EnsureCategory(ctx context.Context, name, department string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, department) VALUES (lower(hex(randomblob(16))), ?, ?)
		 ON CONFLICT (name) DO UPDATE SET department = excluded.department`,
		name, department,
	)
	return eris.Wrapf(err, "sqlite: ensure category %s", name)
}

// scanSQLiteRecord reads one record from a database/sql row.
func scanSQLiteRecord(row interface{ Scan(...any) error }) (*model.CanonicalRecord, error) {
	var rec model.CanonicalRecord
	var externalID, category, subcategory, department, address sql.NullString
	var locationDetails, description, notes, reason, geoSource, geoQuality, source sql.NullString
	var confJSON sql.NullString
	var status, priority string
	var createdAt time.Time

	err := row.Scan(
		&rec.ID, &externalID, &rec.RawInput, &rec.IsEmergency, &rec.IsValid,
		&status, &category, &subcategory, &department, &address,
		&locationDetails, &description, &priority, &notes, &reason,
		&rec.Latitude, &rec.Longitude, &geoSource, &geoQuality, &confJSON,
		&rec.NeedsReview, &source, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.RecordStatus(status)
	rec.Priority = model.Priority(priority)
	rec.ExternalID = externalID.String
	rec.Category = category.String
	rec.Subcategory = subcategory.String
	rec.Department = department.String
	rec.Address = address.String
	rec.LocationDetails = locationDetails.String
	rec.Description = description.String
	rec.Notes = notes.String
	rec.Reason = reason.String
	rec.GeocodeSource = geoSource.String
	rec.GeocodeQuality = geoQuality.String
	rec.Source = source.String
	rec.CreatedAt = createdAt

	if confJSON.Valid && confJSON.String != "" {
		if err := json.Unmarshal([]byte(confJSON.String), &rec.Confidence); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal confidence")
		}
	}
	return &rec, nil
}
