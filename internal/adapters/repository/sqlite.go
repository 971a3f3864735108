package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

const jobColumns = `id, filename, input_path, url, digest, kind, status, progress,
	started_at, completed_at, plates, total_vehicles, output_image, output_video, preview, error`

// SQLiteStore persists jobs in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// pending migrations.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conns := 1
	if o.maxOpenConns > 0 {
		conns = o.maxOpenConns
	}
	db.SetMaxOpenConns(conns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	o.logger.Info(ctx, "sqlite store ready", logger.String("path", path))
	return &SQLiteStore{db: db, logger: o.logger}, nil
}

func migrateSQLite(db *sql.DB) error {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("sqlite: migration source: %w", err)
	}
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: migration driver: %w", err)
	}
	// m is not closed: closing it would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migration up failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverSQLite, "create", time.Now())

	plates, err := json.Marshal(nonNil(job.Plates))
	if err != nil {
		return fmt.Errorf("sqlite: encode plates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Filename, job.InputPath, job.URL, job.Digest, string(job.Kind), string(job.Status),
		job.Progress, job.StartedAt.UnixNano(), nullTime(job.CompletedAt), string(plates), job.TotalVehicles,
		job.Artifacts.Image, job.Artifacts.Video, job.Artifacts.Preview, job.Error)
	if err != nil {
		if _, getErr := s.Get(ctx, job.ID); getErr == nil {
			return ErrExists
		}
		return fmt.Errorf("sqlite: insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id, progress string) error {
	defer observe(DriverSQLite, "update_progress", time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ? WHERE id = ? AND status = ?`,
		progress, id, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("sqlite: update progress: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Finish(ctx context.Context, id string, result model.Result) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverSQLite, "finish", time.Now())

	if !result.Status.Terminal() {
		return ErrInvalidState
	}
	plates, err := json.Marshal(nonNil(result.Plates))
	if err != nil {
		return fmt.Errorf("sqlite: encode plates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, kind = COALESCE(NULLIF(?, ''), kind),
		completed_at = ?, plates = ?, total_vehicles = ?, output_image = ?, output_video = ?,
		preview = ?, error = ?
		WHERE id = ? AND status = ?`,
		string(result.Status), string(result.Kind), nullTime(result.CompletedAt), string(plates), result.TotalVehicles,
		result.Artifacts.Image, result.Artifacts.Video, result.Artifacts.Preview, result.Error,
		id, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("sqlite: finish job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: finish job: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return ErrInvalidState
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO job_rows
		(job_id, seq, timestamp, plates, vehicle_count, condition) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare rows: %w", err)
	}
	defer stmt.Close()
	for i, row := range result.Rows {
		if _, err := stmt.ExecContext(ctx, id, i, row.Timestamp, row.Plates, row.VehicleCount, string(row.Condition)); err != nil {
			return fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Job, error) {
	defer observe(DriverSQLite, "get", time.Now())

	var (
		job         model.Job
		kind        string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		plates      string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id).Scan(
		&job.ID, &job.Filename, &job.InputPath, &job.URL, &job.Digest, &kind, &status, &job.Progress,
		&startedAt, &completedAt, &plates, &job.TotalVehicles,
		&job.Artifacts.Image, &job.Artifacts.Video, &job.Artifacts.Preview, &job.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("sqlite: get job: %w", err)
	}
	job.Kind = model.SourceKind(kind)
	job.Status = model.JobStatus(status)
	job.StartedAt = time.Unix(0, startedAt)
	if completedAt.Valid {
		job.CompletedAt = time.Unix(0, completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(plates), &job.Plates); err != nil {
		return model.Job{}, fmt.Errorf("sqlite: decode plates: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, plates, vehicle_count, condition
		FROM job_rows WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return model.Job{}, fmt.Errorf("sqlite: get rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			row       model.Row
			condition string
		)
		if err := rows.Scan(&row.Timestamp, &row.Plates, &row.VehicleCount, &condition); err != nil {
			return model.Job{}, fmt.Errorf("sqlite: scan row: %w", err)
		}
		row.Condition = model.Condition(condition)
		job.Rows = append(job.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return model.Job{}, fmt.Errorf("sqlite: get rows: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	defer observe(DriverSQLite, "delete", time.Now())

	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	defer observe(DriverSQLite, "counts", time.Now())

	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END), 0)
		FROM jobs`, string(model.StatusProcessing), string(model.StatusProcessing)).Scan(&c.Active, &c.Finished)
	if err != nil {
		return Counts{}, fmt.Errorf("sqlite: counts: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) Processing(ctx context.Context) ([]model.Job, error) {
	defer observe(DriverSQLite, "processing", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ? ORDER BY started_at, id`,
		string(model.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list processing: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("sqlite: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list processing: %w", err)
	}

	jobs := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
