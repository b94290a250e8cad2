package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// queryer is the read surface shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts a new job with its stage records.
func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	prepared, err := prepareCreate(job)
	if err != nil {
		return err
	}
	return retryOnBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM jobs WHERE id = ?", prepared.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check job %s: %w", prepared.ID, err)
			}
			if exists > 0 {
				return fmt.Errorf("create job %s: %w", prepared.ID, ErrJobExists)
			}
			row, err := jobRow(prepared)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO jobs ("+jobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				row...,
			); err != nil {
				return fmt.Errorf("insert job %s: %w", prepared.ID, err)
			}
			return writeStages(ctx, tx, prepared)
		})
	})
}

// Get fetches a job by id. The job row and its stage rows come from one
// snapshot.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = loadJob(ctx, tx, id)
		return err
	})
	return job, err
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *SQLiteStore) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at, id"

	var result []*Job
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		defer rows.Close()

		var jobs []*Job
		byID := make(map[string]*Job)
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
			byID[job.ID] = job
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(jobs) == 0 {
			result = []*Job{}
			return nil
		}

		stageRows, err := tx.QueryContext(ctx, "SELECT "+stageColumns+" FROM job_stages ORDER BY job_id, position")
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
		if err := stageRows.Err(); err != nil {
			return err
		}
		result = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update runs mutate inside an immediate transaction so concurrent writers
// to the same job serialize on the database write lock.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	var result *Job
	err := retryOnBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			current, err := loadJob(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := commitUpdate(current, mutate)
			if err != nil {
				return err
			}
			row, err := jobRow(next)
			if err != nil {
				return err
			}
			// Drop id; it becomes the WHERE argument.
			args := append(row[1:], next.ID)
			if _, err := tx.ExecContext(ctx, `UPDATE jobs SET
				owner_id = ?, status = ?, source_path = ?, created_at = ?, updated_at = ?,
				video_metadata_json = ?, error_stage = ?, error_message = ?, error_kind = ?,
				error_at = ?, published_url = ?, lease_owner = ?, lease_expires_at = ?,
				cancel_requested = ?
				WHERE id = ?`, args...); err != nil {
				return fmt.Errorf("update job %s: %w", id, err)
			}
			if err := writeStages(ctx, tx, next); err != nil {
				return err
			}
			result = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// readTx runs fn in a read-only transaction. The driver starts those with a
// deferred BEGIN, so they hold one WAL snapshot without taking the write
// lock.
func (s *SQLiteStore) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

func loadJob(ctx context.Context, q queryer, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &JobNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	rows, err := q.QueryContext(ctx, "SELECT "+stageColumns+" FROM job_stages WHERE job_id = ? ORDER BY position", id)
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
		return nil, err
	}
	return job, nil
}

func writeStages(ctx context.Context, tx *sql.Tx, job *Job) error {
	for position, rec := range job.Stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO job_stages (`+stageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_id, stage) DO UPDATE SET
				position = excluded.position,
				status = excluded.status,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				output_path = excluded.output_path,
				error = excluded.error,
				attempts = excluded.attempts,
				skipped = excluded.skipped`,
			job.ID,
			string(rec.Stage),
			position,
			string(rec.Status),
			nullableTime(rec.StartTime),
			nullableTime(rec.EndTime),
			nullableString(rec.OutputPath),
			nullableString(rec.Error),
			rec.Attempts,
			boolToInt(rec.Skipped),
		); err != nil {
			return fmt.Errorf("write stage %s for %s: %w", rec.Stage, job.ID, err)
		}
	}
	return nil
}
