package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id              TEXT PRIMARY KEY,
		filename        TEXT NOT NULL DEFAULT '',
		input_path      TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		digest          TEXT NOT NULL DEFAULT '',
		kind            TEXT NOT NULL,
		status          TEXT NOT NULL,
		progress        TEXT NOT NULL DEFAULT '',
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ,
		frame_rows      JSONB NOT NULL DEFAULT '[]',
		plates          JSONB NOT NULL DEFAULT '[]',
		total_vehicles  INT NOT NULL DEFAULT 0,
		output_image    TEXT NOT NULL DEFAULT '',
		output_video    TEXT NOT NULL DEFAULT '',
		preview         TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_digest ON jobs(digest);`,
}

type jobRecord struct {
	ID            string `gorm:"primaryKey"`
	Filename      string
	InputPath     string
	URL           string `gorm:"column:url"`
	Digest        string
	Kind          string `gorm:"not null"`
	Status        string `gorm:"not null"`
	Progress      string
	StartedAt     time.Time `gorm:"not null"`
	CompletedAt   *time.Time
	Rows          datatypes.JSONSlice[model.Row] `gorm:"column:frame_rows;type:jsonb"`
	Plates        datatypes.JSONSlice[string]    `gorm:"type:jsonb"`
	TotalVehicles int
	OutputImage   string
	OutputVideo   string
	Preview       string
	Error         string
}

func (jobRecord) TableName() string { return "jobs" }

func toRecord(j model.Job) jobRecord { //nolint:gocritic // hugeParam: converted by value
	r := jobRecord{
		ID:            j.ID,
		Filename:      j.Filename,
		InputPath:     j.InputPath,
		URL:           j.URL,
		Digest:        j.Digest,
		Kind:          string(j.Kind),
		Status:        string(j.Status),
		Progress:      j.Progress,
		StartedAt:     j.StartedAt,
		Rows:          datatypes.NewJSONSlice(append([]model.Row{}, j.Rows...)),
		Plates:        datatypes.NewJSONSlice(append([]string{}, j.Plates...)),
		TotalVehicles: j.TotalVehicles,
		OutputImage:   j.Artifacts.Image,
		OutputVideo:   j.Artifacts.Video,
		Preview:       j.Artifacts.Preview,
		Error:         j.Error,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

func fromRecord(r jobRecord) model.Job { //nolint:gocritic // hugeParam: converted by value
	j := model.Job{
		ID:            r.ID,
		Filename:      r.Filename,
		InputPath:     r.InputPath,
		URL:           r.URL,
		Digest:        r.Digest,
		Kind:          model.SourceKind(r.Kind),
		Status:        model.JobStatus(r.Status),
		Progress:      r.Progress,
		StartedAt:     r.StartedAt,
		TotalVehicles: r.TotalVehicles,
		Artifacts: model.Artifacts{
			Image:   r.OutputImage,
			Video:   r.OutputVideo,
			Preview: r.Preview,
		},
		Error: r.Error,
	}
	if len(r.Rows) > 0 {
		j.Rows = []model.Row(r.Rows)
	}
	if len(r.Plates) > 0 {
		j.Plates = []string(r.Plates)
	}
	if r.CompletedAt != nil {
		j.CompletedAt = *r.CompletedAt
	}
	return j
}

// PostgresStore persists jobs in PostgreSQL through gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewPostgresStore connects to dsn and creates the schema if missing.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := buildOptions(opts)
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty dsn")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if o.maxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres: pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(o.maxOpenConns)
	}

	for i, stmt := range postgresMigrations {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("postgres: migration %d failed: %w", i+1, err)
		}
	}

	o.logger.Info(ctx, "postgres store ready")
	return &PostgresStore{db: db, logger: o.logger}, nil
}

func (s *PostgresStore) Create(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverPostgres, "create", time.Now())

	rec := toRecord(job)
	err := s.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	if err != nil {
		if _, getErr := s.Get(ctx, job.ID); getErr == nil {
			return ErrExists
		}
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id, progress string) error {
	defer observe(DriverPostgres, "update_progress", time.Now())

	res := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND status = ?", id, string(model.StatusProcessing)).
		Update("progress", progress)
	if res.Error != nil {
		return fmt.Errorf("postgres: update progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missingOrInvalid(ctx, id)
	}
	return nil
}

func (s *PostgresStore) Finish(ctx context.Context, id string, result model.Result) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverPostgres, "finish", time.Now())

	if !result.Status.Terminal() {
		return ErrInvalidState
	}
	job := model.Job{ID: id}
	job.Apply(result)
	rec := toRecord(job)

	updates := map[string]interface{}{
		"status":         rec.Status,
		"completed_at":   rec.CompletedAt,
		"frame_rows":     rec.Rows,
		"plates":         rec.Plates,
		"total_vehicles": rec.TotalVehicles,
		"output_image":   rec.OutputImage,
		"output_video":   rec.OutputVideo,
		"preview":        rec.Preview,
		"error":          rec.Error,
	}
	if result.Kind != "" {
		updates["kind"] = string(result.Kind)
	}
	res := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND status = ?", id, string(model.StatusProcessing)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("postgres: finish job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missingOrInvalid(ctx, id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Job, error) {
	defer observe(DriverPostgres, "get", time.Now())

	var rec jobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("postgres: get job: %w", err)
	}
	return fromRecord(rec), nil
}

func (s *PostgresStore) Processing(ctx context.Context) ([]model.Job, error) {
	defer observe(DriverPostgres, "processing", time.Now())

	var recs []jobRecord
	err := s.db.WithContext(ctx).Where("status = ?", string(model.StatusProcessing)).
		Order("started_at, id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: list processing: %w", err)
	}
	jobs := make([]model.Job, 0, len(recs))
	for _, rec := range recs {
		jobs = append(jobs, fromRecord(rec))
	}
	return jobs, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	defer observe(DriverPostgres, "delete", time.Now())

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&jobRecord{}).Error; err != nil {
		return fmt.Errorf("postgres: delete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	defer observe(DriverPostgres, "counts", time.Now())

	var active, total int64
	db := s.db.WithContext(ctx).Model(&jobRecord{})
	if err := db.Count(&total).Error; err != nil {
		return Counts{}, fmt.Errorf("postgres: counts: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("status = ?", string(model.StatusProcessing)).Count(&active).Error; err != nil {
		return Counts{}, fmt.Errorf("postgres: counts: %w", err)
	}
	return Counts{Active: int(active), Finished: int(total - active)}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) missingOrInvalid(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}
