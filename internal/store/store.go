// Package store defines the persistence contract shared by the memory,
// SQLite and PostgreSQL backends.
package store

import (
	"context"
	"errors"

	"batchqc/internal/models"
)

// ErrNotFound is returned when a batch or report does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract for batches and final-control reports.
//
// Implementations must keep the invariant that a report for a batch exists
// if and only if the batch is flagged as final-control done.
type Store interface {
	// ListPending returns batches created on date (YYYY-MM-DD) whose final
	// control is not done, ordered by id.
	ListPending(ctx context.Context, date string) ([]models.Batch, error)

	// GetBatch returns the batch with all stage records it has.
	GetBatch(ctx context.Context, id int64) (*models.Batch, error)

	// GetReport returns the final report of a batch.
	GetReport(ctx context.Context, batchID int64) (*models.FinalReport, error)

	// UpsertReport inserts the report or overwrites the existing one.
	UpsertReport(ctx context.Context, r models.FinalReport) error

	// SetFinalControl sets the final-control flag of a batch.
	SetFinalControl(ctx context.Context, batchID int64, done bool) error

	// RecordFinalControl upserts the report and sets the flag atomically.
	RecordFinalControl(ctx context.Context, r models.FinalReport) error

	// ListReports returns every report with its batch identity, newest
	// control date first.
	ListReports(ctx context.Context) ([]models.ReportSummary, error)

	// CreateBatch stores a batch with its stage records. It returns
	// ErrExists when the id is taken.
	CreateBatch(ctx context.Context, b models.Batch) error

	Ping(ctx context.Context) error
	Close() error
}

// ErrExists is returned by CreateBatch for a duplicate id.
var ErrExists = errors.New("already exists")
