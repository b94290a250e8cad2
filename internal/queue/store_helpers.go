package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reelforge/internal/stage"
)

const jobColumns = `id, owner_id, status, source_path, created_at, updated_at, video_metadata_json,
	error_stage, error_message, error_kind, error_at, published_url,
	lease_owner, lease_expires_at, cancel_requested`

const stageColumns = `job_id, stage, position, status, start_time, end_time, output_path, error, attempts, skipped`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job            Job
		status         string
		sourcePath     sql.NullString
		createdAt      string
		updatedAt      string
		metadataJSON   string
		errorStage     sql.NullString
		errorMessage   sql.NullString
		errorKind      sql.NullString
		errorAt        sql.NullString
		publishedURL   sql.NullString
		leaseOwner     sql.NullString
		leaseExpiresAt sql.NullString
		cancel         int
	)
	if err := scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&sourcePath,
		&createdAt,
		&updatedAt,
		&metadataJSON,
		&errorStage,
		&errorMessage,
		&errorKind,
		&errorAt,
		&publishedURL,
		&leaseOwner,
		&leaseExpiresAt,
		&cancel,
	); err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.SourcePath = sourcePath.String
	job.PublishedURL = publishedURL.String
	job.CancelRequested = cancel != 0

	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", job.ID, err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &job.VideoMetadata); err != nil {
		return nil, fmt.Errorf("job %s video metadata: %w", job.ID, err)
	}
	if errorStage.Valid || errorMessage.Valid {
		ts, err := parseNullTime(errorAt)
		if err != nil {
			return nil, fmt.Errorf("job %s error_at: %w", job.ID, err)
		}
		jobErr := &JobError{
			Stage:   stage.ID(errorStage.String),
			Message: errorMessage.String,
			Kind:    errorKind.String,
		}
		if ts != nil {
			jobErr.Timestamp = *ts
		}
		job.Error = jobErr
	}
	if leaseOwner.Valid && leaseOwner.String != "" {
		expires, err := parseNullTime(leaseExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("job %s lease_expires_at: %w", job.ID, err)
		}
		lease := &Lease{Owner: leaseOwner.String}
		if expires != nil {
			lease.ExpiresAt = *expires
		}
		job.Lease = lease
	}
	job.Stages = []StageRecord{}
	return &job, nil
}

func scanStage(scanner rowScanner) (string, StageRecord, error) {
	var (
		jobID      string
		rec        StageRecord
		stageID    string
		position   int
		status     string
		startTime  sql.NullString
		endTime    sql.NullString
		outputPath sql.NullString
		errMsg     sql.NullString
		skipped    int
	)
	if err := scanner.Scan(
		&jobID,
		&stageID,
		&position,
		&status,
		&startTime,
		&endTime,
		&outputPath,
		&errMsg,
		&rec.Attempts,
		&skipped,
	); err != nil {
		return "", StageRecord{}, err
	}
	rec.Stage = stage.ID(stageID)
	rec.Status = StageStatus(status)
	rec.OutputPath = outputPath.String
	rec.Error = errMsg.String
	rec.Skipped = skipped != 0
	var err error
	if rec.StartTime, err = parseNullTime(startTime); err != nil {
		return "", StageRecord{}, fmt.Errorf("stage %s start_time: %w", stageID, err)
	}
	if rec.EndTime, err = parseNullTime(endTime); err != nil {
		return "", StageRecord{}, fmt.Errorf("stage %s end_time: %w", stageID, err)
	}
	return jobID, rec, nil
}

func formatTime(t time.Time) string {
	return normalizeTime(t).Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// jobRow flattens a job into the column values of the jobs table, in
// jobColumns order.
func jobRow(job *Job) ([]any, error) {
	metadata, err := json.Marshal(job.VideoMetadata)
	if err != nil {
		return nil, fmt.Errorf("encode video metadata: %w", err)
	}
	var (
		errorStage, errorMessage, errorKind sql.NullString
		errorAt                             sql.NullString
		leaseOwner, leaseExpires            sql.NullString
	)
	if job.Error != nil {
		errorStage = sql.NullString{String: string(job.Error.Stage), Valid: true}
		errorMessage = sql.NullString{String: job.Error.Message, Valid: true}
		errorKind = nullableString(job.Error.Kind)
		errorAt = nullableTime(&job.Error.Timestamp)
	}
	if job.Lease != nil {
		leaseOwner = nullableString(job.Lease.Owner)
		leaseExpires = nullableTime(&job.Lease.ExpiresAt)
	}
	return []any{
		job.ID,
		job.OwnerID,
		string(job.Status),
		nullableString(job.SourcePath),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		string(metadata),
		errorStage,
		errorMessage,
		errorKind,
		errorAt,
		nullableString(job.PublishedURL),
		leaseOwner,
		leaseExpires,
		boolToInt(job.CancelRequested),
	}, nil
}
