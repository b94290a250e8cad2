package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const uniqueViolation = "23505"

const jobColumns = `id, owner_id, status, source_path, created_at, updated_at, video_metadata,
	error_stage, error_message, error_kind, error_at, published_url,
	lease_owner, lease_expires_at, cancel_requested`

const stageColumns = `job_id, stage, position, status, start_time, end_time, output_path, error, attempts, skipped`

// Store persists jobs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ queue.Store = (*Store)(nil)

// Connect opens a pool against databaseURL, verifies it, and creates the
// schema when missing.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("connect job store: empty database url")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect job store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		var version int
		err := tx.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d",
				queue.ErrSchemaMismatch, version, schemaVersion)
		}
		return nil
	})
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Create inserts a job and its stage records.
func (s *Store) Create(ctx context.Context, job *queue.Job) error {
	prepared, err := queue.PrepareCreate(job)
	if err != nil {
		return err
	}
	args, err := jobArgs(prepared)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO jobs ("+jobColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
			args...)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create job %s: %w", prepared.ID, queue.ErrJobExists)
		}
		if err != nil {
			return fmt.Errorf("insert job %s: %w", prepared.ID, err)
		}
		return writeStages(ctx, tx, prepared)
	})
}

// snapshotRead gives both statements of a read one snapshot; under READ
// COMMITTED each statement would see its own.
var snapshotRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	var job *queue.Job
	err := pgx.BeginTxFunc(ctx, s.pool, snapshotRead, func(tx pgx.Tx) error {
		var err error
		job, err = loadJob(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if len(statuses) > 0 {
		filter := make([]string, len(statuses))
		for i, status := range statuses {
			filter[i] = string(status)
		}
		query += " WHERE status = ANY($1)"
		args = append(args, filter)
	}
	query += " ORDER BY created_at, id"

	jobs := []*queue.Job{}
	err := pgx.BeginTxFunc(ctx, s.pool, snapshotRead, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		byID := make(map[string]*queue.Job)
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return err
			}
			jobs = append(jobs, job)
			byID[job.ID] = job
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		stageRows, err := tx.Query(ctx,
			"SELECT "+stageColumns+" FROM job_stages WHERE job_id = ANY($1) ORDER BY job_id, position", ids)
		if err != nil {
			return fmt.Errorf("list stages: %w", err)
		}
		defer stageRows.Close()
		for stageRows.Next() {
			jobID, rec, err := scanStage(stageRows)
			if err != nil {
				return err
			}
			if job, ok := byID[jobID]; ok {
				job.Stages = append(job.Stages, rec)
			}
		}
		return stageRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update locks the job row, applies mutate, and writes the result in one
// transaction.
func (s *Store) Update(ctx context.Context, id string, mutate func(*queue.Job) error) (*queue.Job, error) {
	var result *queue.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := loadJob(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := queue.ApplyUpdate(current, mutate)
		if err != nil {
			return err
		}
		args, err := jobArgs(next)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE jobs SET
			owner_id = $2, status = $3, source_path = $4, created_at = $5, updated_at = $6,
			video_metadata = $7, error_stage = $8, error_message = $9, error_kind = $10,
			error_at = $11, published_url = $12, lease_owner = $13, lease_expires_at = $14,
			cancel_requested = $15
			WHERE id = $1`, args...); err != nil {
			return fmt.Errorf("update job %s: %w", id, err)
		}
		if err := writeStages(ctx, tx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func loadJob(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*queue.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	job, err := scanJob(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &queue.JobNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	rows, err := tx.Query(ctx, "SELECT "+stageColumns+" FROM job_stages WHERE job_id = $1 ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("get stages for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		_, rec, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		job.Stages = append(job.Stages, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get stages for %s: %w", id, err)
	}
	return job, nil
}

func writeStages(ctx context.Context, tx pgx.Tx, job *queue.Job) error {
	batch := &pgx.Batch{}
	for position, rec := range job.Stages {
		batch.Queue(`INSERT INTO job_stages (`+stageColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (job_id, stage) DO UPDATE SET
				position = EXCLUDED.position,
				status = EXCLUDED.status,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				output_path = EXCLUDED.output_path,
				error = EXCLUDED.error,
				attempts = EXCLUDED.attempts,
				skipped = EXCLUDED.skipped`,
			job.ID,
			string(rec.Stage),
			position,
			string(rec.Status),
			rec.StartTime,
			rec.EndTime,
			nullable(rec.OutputPath),
			nullable(rec.Error),
			rec.Attempts,
			rec.Skipped,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write stages for %s: %w", job.ID, err)
	}
	return nil
}

func jobArgs(job *queue.Job) ([]any, error) {
	metadata, err := json.Marshal(job.VideoMetadata)
	if err != nil {
		return nil, fmt.Errorf("encode video metadata: %w", err)
	}
	var (
		errorStage, errorMessage, errorKind *string
		errorAt, leaseExpires               *time.Time
		leaseOwner                          *string
	)
	if job.Error != nil {
		errorStage = ptr(string(job.Error.Stage))
		errorMessage = ptr(job.Error.Message)
		errorKind = nullable(job.Error.Kind)
		errorAt = ptr(job.Error.Timestamp)
	}
	if job.Lease != nil {
		leaseOwner = nullable(job.Lease.Owner)
		leaseExpires = ptr(job.Lease.ExpiresAt)
	}
	return []any{
		job.ID,
		job.OwnerID,
		string(job.Status),
		nullable(job.SourcePath),
		job.CreatedAt,
		job.UpdatedAt,
		metadata,
		errorStage,
		errorMessage,
		errorKind,
		errorAt,
		nullable(job.PublishedURL),
		leaseOwner,
		leaseExpires,
		job.CancelRequested,
	}, nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job          queue.Job
		status       string
		sourcePath   *string
		metadata     []byte
		errorStage   *string
		errorMessage *string
		errorKind    *string
		errorAt      *time.Time
		publishedURL *string
		leaseOwner   *string
		leaseExpires *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&sourcePath,
		&job.CreatedAt,
		&job.UpdatedAt,
		&metadata,
		&errorStage,
		&errorMessage,
		&errorKind,
		&errorAt,
		&publishedURL,
		&leaseOwner,
		&leaseExpires,
		&job.CancelRequested,
	); err != nil {
		return nil, err
	}
	job.Status = queue.Status(status)
	job.SourcePath = deref(sourcePath)
	job.PublishedURL = deref(publishedURL)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if err := json.Unmarshal(metadata, &job.VideoMetadata); err != nil {
		return nil, fmt.Errorf("job %s video metadata: %w", job.ID, err)
	}
	if errorStage != nil || errorMessage != nil {
		job.Error = &queue.JobError{
			Stage:   stage.ID(deref(errorStage)),
			Message: deref(errorMessage),
			Kind:    deref(errorKind),
		}
		if errorAt != nil {
			job.Error.Timestamp = errorAt.UTC()
		}
	}
	if owner := deref(leaseOwner); owner != "" {
		job.Lease = &queue.Lease{Owner: owner}
		if leaseExpires != nil {
			job.Lease.ExpiresAt = leaseExpires.UTC()
		}
	}
	job.Stages = []queue.StageRecord{}
	return &job, nil
}

func scanStage(row pgx.Row) (string, queue.StageRecord, error) {
	var (
		jobID      string
		rec        queue.StageRecord
		stageID    string
		position   int
		status     string
		outputPath *string
		errMsg     *string
	)
	if err := row.Scan(
		&jobID,
		&stageID,
		&position,
		&status,
		&rec.StartTime,
		&rec.EndTime,
		&outputPath,
		&errMsg,
		&rec.Attempts,
		&rec.Skipped,
	); err != nil {
		return "", queue.StageRecord{}, fmt.Errorf("scan stage: %w", err)
	}
	rec.Stage = stage.ID(stageID)
	rec.Status = queue.StageStatus(status)
	rec.OutputPath = deref(outputPath)
	rec.Error = deref(errMsg)
	rec.StartTime = utc(rec.StartTime)
	rec.EndTime = utc(rec.EndTime)
	return jobID, rec, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func ptr[T any](v T) *T { return &v }

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
