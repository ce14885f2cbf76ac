// Package store persists canonical service request records behind a
// backend-agnostic interface. Postgres is the production backend;
// SQLite serves local runs and tests.
package store

import (
	"context"

	"github.com/civic-stack/triage311/internal/model"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status      model.RecordStatus `json:"status,omitempty"`
	Department  string             `json:"department,omitempty"`
	Priority    model.Priority     `json:"priority,omitempty"`
	NeedsReview *bool              `json:"needs_review,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Offset      int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for triaged service requests.
type Store interface {
	// Records
	SaveRecord(ctx context.Context, rec *model.CanonicalRecord) error
	GetRecord(ctx context.Context, id string) (*model.CanonicalRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.CanonicalRecord, error)
	UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus) error

	// Bulk import of historical records. Records sharing an external ID
	// with an existing row replace it instead of duplicating.
	ImportRecords(ctx context.Context, recs []model.CanonicalRecord) (int64, error)

	// Reference data
	EnsureDepartment(ctx context.Context, name, description string) error
	EnsureCategory(ctx context.Context, name, department string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
