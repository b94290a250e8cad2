package queue

import (
	"time"

	"reelforge/internal/stage"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageStatus is the state of a single StageRecord.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in-progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// Resolution is a video frame size in pixels.
type Resolution struct {
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// VideoMetadata is captured once when the job is created.
type VideoMetadata struct {
	DurationSeconds float64    `json:"duration" validate:"gt=0"`
	Resolution      Resolution `json:"resolution"`
	Format          string     `json:"format" validate:"required"`
	SizeBytes       int64      `json:"size,omitempty" validate:"gte=0"`
	Checksum        string     `json:"checksum,omitempty" validate:"omitempty,hexadecimal"`
}

// JobError records the fatal failure of a job.
type JobError struct {
	Stage     stage.ID  `json:"stage"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StageRecord tracks one stage of one job. A job never holds two records for
// the same stage.
type StageRecord struct {
	Stage      stage.ID    `json:"stage"`
	Status     StageStatus `json:"status"`
	StartTime  *time.Time  `json:"startTime,omitempty"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	OutputPath string      `json:"outputPath,omitempty"`
	Error      string      `json:"error,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	Skipped    bool        `json:"skipped,omitempty"`
}

// Lease marks the orchestration run that currently owns a job.
type Lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Job is one submitted video moving through the pipeline.
type Job struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"ownerId"`
	Status          Status        `json:"status"`
	SourcePath      string        `json:"sourcePath,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	VideoMetadata   VideoMetadata `json:"videoMetadata"`
	Stages          []StageRecord `json:"stages"`
	Error           *JobError     `json:"error,omitempty"`
	PublishedURL    string        `json:"publishedUrl,omitempty"`
	Lease           *Lease        `json:"lease,omitempty"`
	CancelRequested bool          `json:"cancelRequested,omitempty"`
}

// Clone returns a deep copy so callers never share record slices or pointers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Stages != nil {
		out.Stages = make([]StageRecord, len(j.Stages))
		for i, rec := range j.Stages {
			rec.StartTime = cloneTime(rec.StartTime)
			rec.EndTime = cloneTime(rec.EndTime)
			out.Stages[i] = rec
		}
	}
	if j.Error != nil {
		errCopy := *j.Error
		out.Error = &errCopy
	}
	if j.Lease != nil {
		leaseCopy := *j.Lease
		out.Lease = &leaseCopy
	}
	return &out
}

// Record returns the record for id, or nil.
func (j *Job) Record(id stage.ID) *StageRecord {
	for i := range j.Stages {
		if j.Stages[i].Stage == id {
			return &j.Stages[i]
		}
	}
	return nil
}

// Now returns the current UTC time at the precision every backend preserves.
func Now() time.Time {
	return normalizeTime(time.Now())
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
