// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"batchqc/internal/models"
	"batchqc/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

// timeLayout is fixed-width so that controlled_at sorts lexically.
const timeLayout = "2006-01-02 15:04:05.000000"

// Store is a SQLite-backed store.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; extra connections only queue on the lock.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{DB: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			product_name TEXT NOT NULL,
			created_on TEXT NOT NULL,
			final_control_done INTEGER NOT NULL DEFAULT 0 CHECK(final_control_done IN (0,1))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_pending ON batches(created_on, final_control_done)`,
		`CREATE TABLE IF NOT EXISTS smelting_data (
			batch_id INTEGER PRIMARY KEY REFERENCES batches(id),
			temp_regime TEXT DEFAULT '', time_each_temp TEXT DEFAULT '', total_time TEXT DEFAULT '',
			raw_materials TEXT DEFAULT '', consumed_amount TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS refining_data (
			batch_id INTEGER PRIMARY KEY REFERENCES batches(id),
			duration TEXT DEFAULT '', chemicals TEXT DEFAULT '', chemicals_volume TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cooling_data (
			batch_id INTEGER PRIMARY KEY REFERENCES batches(id),
			cooling_time TEXT DEFAULT '', deformation TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS heat_treatment_data (
			batch_id INTEGER PRIMARY KEY REFERENCES batches(id),
			temp_regime TEXT DEFAULT '', duration TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS mechanical_data (
			batch_id INTEGER PRIMARY KEY REFERENCES batches(id),
			rolled_size TEXT DEFAULT '', additional_info TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS final_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id INTEGER NOT NULL UNIQUE REFERENCES batches(id),
			spatial_dims TEXT DEFAULT '',
			visual_color TEXT DEFAULT '',
			visual_surface TEXT DEFAULT '',
			density TEXT DEFAULT '',
			boiling_point TEXT DEFAULT '',
			melting_point TEXT DEFAULT '',
			batch_good INTEGER NOT NULL DEFAULT 0,
			controlled_by TEXT DEFAULT '',
			controlled_at TEXT NOT NULL
		)`,
	}
	for _, t := range tables {
		if _, err := s.DB.ExecContext(ctx, t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, date string) ([]models.Batch, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, identifier, product_name, created_on, final_control_done
		FROM batches WHERE final_control_done = 0 AND created_on = ? ORDER BY id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Batch{}
	for rows.Next() {
		var b models.Batch
		if err := rows.Scan(&b.ID, &b.Identifier, &b.ProductName, &b.CreatedOn, &b.FinalControlDone); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	var b models.Batch
	err := s.DB.QueryRowContext(ctx, `SELECT id, identifier, product_name, created_on, final_control_done
		FROM batches WHERE id = ?`, id).
		Scan(&b.ID, &b.Identifier, &b.ProductName, &b.CreatedOn, &b.FinalControlDone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var sm models.Smelting
	err = s.DB.QueryRowContext(ctx, `SELECT temp_regime, time_each_temp, total_time, raw_materials, consumed_amount
		FROM smelting_data WHERE batch_id = ?`, id).
		Scan(&sm.TempRegime, &sm.TimeEachTemp, &sm.TotalTime, &sm.RawMaterials, &sm.ConsumedAmount)
	if b.Smelting, err = optional(&sm, err); err != nil {
		return nil, fmt.Errorf("smelting_data: %w", err)
	}

	var rf models.Refining
	err = s.DB.QueryRowContext(ctx, `SELECT duration, chemicals, chemicals_volume
		FROM refining_data WHERE batch_id = ?`, id).
		Scan(&rf.Duration, &rf.Chemicals, &rf.ChemicalsVolume)
	if b.Refining, err = optional(&rf, err); err != nil {
		return nil, fmt.Errorf("refining_data: %w", err)
	}

	var cl models.Cooling
	err = s.DB.QueryRowContext(ctx, `SELECT cooling_time, deformation
		FROM cooling_data WHERE batch_id = ?`, id).
		Scan(&cl.CoolingTime, &cl.Deformation)
	if b.Cooling, err = optional(&cl, err); err != nil {
		return nil, fmt.Errorf("cooling_data: %w", err)
	}

	var ht models.HeatTreatment
	err = s.DB.QueryRowContext(ctx, `SELECT temp_regime, duration
		FROM heat_treatment_data WHERE batch_id = ?`, id).
		Scan(&ht.TempRegime, &ht.Duration)
	if b.HeatTreatment, err = optional(&ht, err); err != nil {
		return nil, fmt.Errorf("heat_treatment_data: %w", err)
	}

	var mc models.Mechanical
	err = s.DB.QueryRowContext(ctx, `SELECT rolled_size, additional_info
		FROM mechanical_data WHERE batch_id = ?`, id).
		Scan(&mc.RolledSize, &mc.AdditionalInfo)
	if b.Mechanical, err = optional(&mc, err); err != nil {
		return nil, fmt.Errorf("mechanical_data: %w", err)
	}

	return &b, nil
}

// optional maps a missing stage row to nil.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) GetReport(ctx context.Context, batchID int64) (*models.FinalReport, error) {
	var r models.FinalReport
	var controlledAt string
	err := s.DB.QueryRowContext(ctx, `SELECT batch_id, spatial_dims, visual_color, visual_surface, density,
		boiling_point, melting_point, batch_good, controlled_by, controlled_at
		FROM final_reports WHERE batch_id = ?`, batchID).
		Scan(&r.BatchID, &r.SpatialDims, &r.VisualColor, &r.VisualSurface, &r.Density,
			&r.BoilingPoint, &r.MeltingPoint, &r.BatchGood, &r.ControlledBy, &controlledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report for batch %d: %w", batchID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.ControlledAt = parseTime(controlledAt)
	return &r, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertReport(ctx context.Context, ex execer, r models.FinalReport) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO final_reports
		(batch_id, spatial_dims, visual_color, visual_surface, density, boiling_point, melting_point, batch_good, controlled_by, controlled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(batch_id) DO UPDATE SET
			spatial_dims = excluded.spatial_dims,
			visual_color = excluded.visual_color,
			visual_surface = excluded.visual_surface,
			density = excluded.density,
			boiling_point = excluded.boiling_point,
			melting_point = excluded.melting_point,
			batch_good = excluded.batch_good,
			controlled_by = excluded.controlled_by,
			controlled_at = excluded.controlled_at`,
		r.BatchID, r.SpatialDims, r.VisualColor, r.VisualSurface, r.Density, r.BoilingPoint, r.MeltingPoint,
		r.BatchGood, r.ControlledBy, formatTime(r.ControlledAt))
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY") {
		return fmt.Errorf("batch %d: %w", r.BatchID, store.ErrNotFound)
	}
	return err
}

func setFinalControl(ctx context.Context, ex execer, batchID int64, done bool) error {
	res, err := ex.ExecContext(ctx, "UPDATE batches SET final_control_done = ? WHERE id = ?", done, batchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %d: %w", batchID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertReport(ctx context.Context, r models.FinalReport) error {
	return upsertReport(ctx, s.DB, r)
}

func (s *Store) SetFinalControl(ctx context.Context, batchID int64, done bool) error {
	return setFinalControl(ctx, s.DB, batchID, done)
}

func (s *Store) RecordFinalControl(ctx context.Context, r models.FinalReport) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertReport(ctx, tx, r); err != nil {
		return err
	}
	if err := setFinalControl(ctx, tx, r.BatchID, true); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListReports(ctx context.Context) ([]models.ReportSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT r.batch_id, r.spatial_dims, r.visual_color, r.visual_surface, r.density,
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
		var controlledAt string
		if err := rows.Scan(&it.BatchID, &it.SpatialDims, &it.VisualColor, &it.VisualSurface, &it.Density,
			&it.BoilingPoint, &it.MeltingPoint, &it.BatchGood, &it.ControlledBy, &controlledAt,
			&it.Identifier, &it.ProductName); err != nil {
			return nil, err
		}
		it.ControlledAt = parseTime(controlledAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, b models.Batch) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM batches WHERE id = ?", b.ID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("batch %d: %w", b.ID, store.ErrExists)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO batches (id, identifier, product_name, created_on, final_control_done)
		VALUES (?,?,?,?,?)`, b.ID, b.Identifier, b.ProductName, b.CreatedOn, b.FinalControlDone); err != nil {
		return err
	}
	if sm := b.Smelting; sm != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO smelting_data (batch_id, temp_regime, time_each_temp, total_time, raw_materials, consumed_amount)
			VALUES (?,?,?,?,?,?)`, b.ID, sm.TempRegime, sm.TimeEachTemp, sm.TotalTime, sm.RawMaterials, sm.ConsumedAmount); err != nil {
			return err
		}
	}
	if rf := b.Refining; rf != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO refining_data (batch_id, duration, chemicals, chemicals_volume)
			VALUES (?,?,?,?)`, b.ID, rf.Duration, rf.Chemicals, rf.ChemicalsVolume); err != nil {
			return err
		}
	}
	if cl := b.Cooling; cl != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cooling_data (batch_id, cooling_time, deformation)
			VALUES (?,?,?)`, b.ID, cl.CoolingTime, cl.Deformation); err != nil {
			return err
		}
	}
	if ht := b.HeatTreatment; ht != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO heat_treatment_data (batch_id, temp_regime, duration)
			VALUES (?,?,?)`, b.ID, ht.TempRegime, ht.Duration); err != nil {
			return err
		}
	}
	if mc := b.Mechanical; mc != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO mechanical_data (batch_id, rolled_size, additional_info)
			VALUES (?,?,?)`, b.ID, mc.RolledSize, mc.AdditionalInfo); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
