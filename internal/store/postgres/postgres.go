// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"batchqc/internal/models"
	"batchqc/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and runs migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id BIGINT PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			product_name TEXT NOT NULL,
			created_on DATE NOT NULL,
			final_control_done BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_pending ON batches(created_on) WHERE NOT final_control_done`,
		`CREATE TABLE IF NOT EXISTS smelting_data (
			batch_id BIGINT PRIMARY KEY REFERENCES batches(id),
			temp_regime TEXT NOT NULL DEFAULT '', time_each_temp TEXT NOT NULL DEFAULT '', total_time TEXT NOT NULL DEFAULT '',
			raw_materials TEXT NOT NULL DEFAULT '', consumed_amount TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS refining_data (
			batch_id BIGINT PRIMARY KEY REFERENCES batches(id),
			duration TEXT NOT NULL DEFAULT '', chemicals TEXT NOT NULL DEFAULT '', chemicals_volume TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cooling_data (
			batch_id BIGINT PRIMARY KEY REFERENCES batches(id),
			cooling_time TEXT NOT NULL DEFAULT '', deformation TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS heat_treatment_data (
			batch_id BIGINT PRIMARY KEY REFERENCES batches(id),
			temp_regime TEXT NOT NULL DEFAULT '', duration TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS mechanical_data (
			batch_id BIGINT PRIMARY KEY REFERENCES batches(id),
			rolled_size TEXT NOT NULL DEFAULT '', additional_info TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS final_reports (
			id BIGSERIAL PRIMARY KEY,
			batch_id BIGINT NOT NULL UNIQUE REFERENCES batches(id),
			spatial_dims TEXT NOT NULL DEFAULT '',
			visual_color TEXT NOT NULL DEFAULT '',
			visual_surface TEXT NOT NULL DEFAULT '',
			density TEXT NOT NULL DEFAULT '',
			boiling_point TEXT NOT NULL DEFAULT '',
			melting_point TEXT NOT NULL DEFAULT '',
			batch_good BOOLEAN NOT NULL DEFAULT FALSE,
			controlled_by TEXT NOT NULL DEFAULT '',
			controlled_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, t := range tables {
		if _, err := s.pool.Exec(ctx, t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, date string) ([]models.Batch, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	rows, err := s.pool.Query(ctx, `SELECT id, identifier, product_name, created_on, final_control_done
		FROM batches WHERE NOT final_control_done AND created_on = $1 ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Batch{}
	for rows.Next() {
		var b models.Batch
		var createdOn time.Time
		if err := rows.Scan(&b.ID, &b.Identifier, &b.ProductName, &createdOn, &b.FinalControlDone); err != nil {
			return nil, err
		}
		b.CreatedOn = createdOn.Format(models.DateLayout)
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	var b models.Batch
	var createdOn time.Time
	err := s.pool.QueryRow(ctx, `SELECT id, identifier, product_name, created_on, final_control_done
		FROM batches WHERE id = $1`, id).
		Scan(&b.ID, &b.Identifier, &b.ProductName, &createdOn, &b.FinalControlDone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.CreatedOn = createdOn.Format(models.DateLayout)

	// Stage rows are independent; load them in parallel on the pool.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var v models.Smelting
		err := s.pool.QueryRow(gctx, `SELECT temp_regime, time_each_temp, total_time, raw_materials, consumed_amount
			FROM smelting_data WHERE batch_id = $1`, id).
			Scan(&v.TempRegime, &v.TimeEachTemp, &v.TotalTime, &v.RawMaterials, &v.ConsumedAmount)
		b.Smelting, err = optional(&v, err)
		return err
	})
	g.Go(func() error {
		var v models.Refining
		err := s.pool.QueryRow(gctx, `SELECT duration, chemicals, chemicals_volume
			FROM refining_data WHERE batch_id = $1`, id).
			Scan(&v.Duration, &v.Chemicals, &v.ChemicalsVolume)
		b.Refining, err = optional(&v, err)
		return err
	})
	g.Go(func() error {
		var v models.Cooling
		err := s.pool.QueryRow(gctx, `SELECT cooling_time, deformation
			FROM cooling_data WHERE batch_id = $1`, id).
			Scan(&v.CoolingTime, &v.Deformation)
		b.Cooling, err = optional(&v, err)
		return err
	})
	g.Go(func() error {
		var v models.HeatTreatment
		err := s.pool.QueryRow(gctx, `SELECT temp_regime, duration
			FROM heat_treatment_data WHERE batch_id = $1`, id).
			Scan(&v.TempRegime, &v.Duration)
		b.HeatTreatment, err = optional(&v, err)
		return err
	})
	g.Go(func() error {
		var v models.Mechanical
		err := s.pool.QueryRow(gctx, `SELECT rolled_size, additional_info
			FROM mechanical_data WHERE batch_id = $1`, id).
			Scan(&v.RolledSize, &v.AdditionalInfo)
		b.Mechanical, err = optional(&v, err)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %d stages: %w", id, err)
	}
	return &b, nil
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) GetReport(ctx context.Context, batchID int64) (*models.FinalReport, error) {
	var r models.FinalReport
	err := s.pool.QueryRow(ctx, `SELECT batch_id, spatial_dims, visual_color, visual_surface, density,
		boiling_point, melting_point, batch_good, controlled_by, controlled_at
		FROM final_reports WHERE batch_id = $1`, batchID).
		Scan(&r.BatchID, &r.SpatialDims, &r.VisualColor, &r.VisualSurface, &r.Density,
			&r.BoilingPoint, &r.MeltingPoint, &r.BatchGood, &r.ControlledBy, &r.ControlledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report for batch %d: %w", batchID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertReport(ctx context.Context, q querier, r models.FinalReport) error {
	_, err := q.Exec(ctx, `INSERT INTO final_reports
		(batch_id, spatial_dims, visual_color, visual_surface, density, boiling_point, melting_point, batch_good, controlled_by, controlled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (batch_id) DO UPDATE SET
			spatial_dims = EXCLUDED.spatial_dims,
			visual_color = EXCLUDED.visual_color,
			visual_surface = EXCLUDED.visual_surface,
			density = EXCLUDED.density,
			boiling_point = EXCLUDED.boiling_point,
			melting_point = EXCLUDED.melting_point,
			batch_good = EXCLUDED.batch_good,
			controlled_by = EXCLUDED.controlled_by,
			controlled_at = EXCLUDED.controlled_at`,
		r.BatchID, r.SpatialDims, r.VisualColor, r.VisualSurface, r.Density, r.BoilingPoint, r.MeltingPoint,
		r.BatchGood, r.ControlledBy, r.ControlledAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("batch %d: %w", r.BatchID, store.ErrNotFound)
	}
	return err
}

func setFinalControl(ctx context.Context, q querier, batchID int64, done bool) error {
	tag, err := q.Exec(ctx, "UPDATE batches SET final_control_done = $1 WHERE id = $2", done, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %d: %w", batchID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertReport(ctx context.Context, r models.FinalReport) error {
	return upsertReport(ctx, s.pool, r)
}

func (s *Store) SetFinalControl(ctx context.Context, batchID int64, done bool) error {
	return setFinalControl(ctx, s.pool, batchID, done)
}

func (s *Store) RecordFinalControl(ctx context.Context, r models.FinalReport) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertReport(ctx, tx, r); err != nil {
			return err
		}
		return setFinalControl(ctx, tx, r.BatchID, true)
	})
}

func (s *Store) ListReports(ctx context.Context) ([]models.ReportSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.batch_id, r.spatial_dims, r.visual_color, r.visual_surface, r.density,
		r.boiling_point, r.melting_point, r.batch_good, r.controlled_by, r.controlled_at,
		b.identifier, b.product_name
		FROM final_reports r JOIN batches b ON b.id = r.batch_id
		ORDER BY r.controlled_at DESC, r.batch_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ReportSummary{}
	for rows.Next() {
		var it models.ReportSummary
		if err := rows.Scan(&it.BatchID, &it.SpatialDims, &it.VisualColor, &it.VisualSurface, &it.Density,
			&it.BoilingPoint, &it.MeltingPoint, &it.BatchGood, &it.ControlledBy, &it.ControlledAt,
			&it.Identifier, &it.ProductName); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, b models.Batch) error {
	day, err := time.Parse(models.DateLayout, b.CreatedOn)
	if err != nil {
		return fmt.Errorf("batch %d date %q: %w", b.ID, b.CreatedOn, err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)", b.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("batch %d: %w", b.ID, store.ErrExists)
		}

		batch := &pgx.Batch{}
		batch.Queue(`INSERT INTO batches (id, identifier, product_name, created_on, final_control_done)
			VALUES ($1,$2,$3,$4,$5)`, b.ID, b.Identifier, b.ProductName, day, b.FinalControlDone)
		if sm := b.Smelting; sm != nil {
			batch.Queue(`INSERT INTO smelting_data (batch_id, temp_regime, time_each_temp, total_time, raw_materials, consumed_amount)
				VALUES ($1,$2,$3,$4,$5,$6)`, b.ID, sm.TempRegime, sm.TimeEachTemp, sm.TotalTime, sm.RawMaterials, sm.ConsumedAmount)
		}
		if rf := b.Refining; rf != nil {
			batch.Queue(`INSERT INTO refining_data (batch_id, duration, chemicals, chemicals_volume)
				VALUES ($1,$2,$3,$4)`, b.ID, rf.Duration, rf.Chemicals, rf.ChemicalsVolume)
		}
		if cl := b.Cooling; cl != nil {
			batch.Queue(`INSERT INTO cooling_data (batch_id, cooling_time, deformation)
				VALUES ($1,$2,$3)`, b.ID, cl.CoolingTime, cl.Deformation)
		}
		if ht := b.HeatTreatment; ht != nil {
			batch.Queue(`INSERT INTO heat_treatment_data (batch_id, temp_regime, duration)
				VALUES ($1,$2,$3)`, b.ID, ht.TempRegime, ht.Duration)
		}
		if mc := b.Mechanical; mc != nil {
			batch.Queue(`INSERT INTO mechanical_data (batch_id, rolled_size, additional_info)
				VALUES ($1,$2,$3)`, b.ID, mc.RolledSize, mc.AdditionalInfo)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Truncate removes every row. Used by tests against a scratch database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE final_reports, smelting_data, refining_data, cooling_data,
		heat_treatment_data, mechanical_data, batches`)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
