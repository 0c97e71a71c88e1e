// Package memory provides an in-process implementation of store.Store used
// for demos and tests. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"batchqc/internal/models"
	"batchqc/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps batches and reports in maps guarded by one lock.
type Store struct {
	mu      sync.RWMutex
	batches map[int64]models.Batch
	reports map[int64]models.FinalReport
}

// New returns an empty store.
func New() *Store {
	return &Store{
		batches: make(map[int64]models.Batch),
		reports: make(map[int64]models.FinalReport),
	}
}

func (s *Store) ListPending(ctx context.Context, date string) ([]models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []models.Batch{}
	for _, b := range s.batches {
		if b.FinalControlDone || b.CreatedOn != date {
			continue
		}
		items = append(items, identity(b))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %d: %w", id, store.ErrNotFound)
	}
	c := clone(b)
	return &c, nil
}

func (s *Store) GetReport(ctx context.Context, batchID int64) (*models.FinalReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[batchID]
	if !ok {
		return nil, fmt.Errorf("report for batch %d: %w", batchID, store.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) UpsertReport(ctx context.Context, r models.FinalReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(r)
}

func (s *Store) SetFinalControl(ctx context.Context, batchID int64, done bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFlagLocked(batchID, done)
}

func (s *Store) RecordFinalControl(ctx context.Context, r models.FinalReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertLocked(r); err != nil {
		return err
	}
	return s.setFlagLocked(r.BatchID, true)
}

func (s *Store) upsertLocked(r models.FinalReport) error {
	if _, ok := s.batches[r.BatchID]; !ok {
		return fmt.Errorf("batch %d: %w", r.BatchID, store.ErrNotFound)
	}
	s.reports[r.BatchID] = r
	return nil
}

func (s *Store) setFlagLocked(batchID int64, done bool) error {
	b, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d: %w", batchID, store.ErrNotFound)
	}
	b.FinalControlDone = done
	s.batches[batchID] = b
	return nil
}

func (s *Store) ListReports(ctx context.Context) ([]models.ReportSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.ReportSummary, 0, len(s.reports))
	for id, r := range s.reports {
		b := s.batches[id]
		items = append(items, models.ReportSummary{
			FinalReport: r,
			Identifier:  b.Identifier,
			ProductName: b.ProductName,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ControlledAt.Equal(items[j].ControlledAt) {
			return items[i].ControlledAt.After(items[j].ControlledAt)
		}
		return items[i].BatchID > items[j].BatchID
	})
	return items, nil
}

func (s *Store) CreateBatch(ctx context.Context, b models.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("batch %d: %w", b.ID, store.ErrExists)
	}
	s.batches[b.ID] = clone(b)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func identity(b models.Batch) models.Batch {
	return models.Batch{
		ID:               b.ID,
		Identifier:       b.Identifier,
		ProductName:      b.ProductName,
		CreatedOn:        b.CreatedOn,
		FinalControlDone: b.FinalControlDone,
	}
}

// clone copies stage records so callers never share them with the store.
func clone(b models.Batch) models.Batch {
	c := b
	if b.Smelting != nil {
		v := *b.Smelting
		c.Smelting = &v
	}
	if b.Refining != nil {
		v := *b.Refining
		c.Refining = &v
	}
	if b.Cooling != nil {
		v := *b.Cooling
		c.Cooling = &v
	}
	if b.HeatTreatment != nil {
		v := *b.HeatTreatment
		c.HeatTreatment = &v
	}
	if b.Mechanical != nil {
		v := *b.Mechanical
		c.Mechanical = &v
	}
	return c
}
