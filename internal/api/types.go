package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"ownerId"`
	Status          string        `json:"status"`
	SourcePath      string        `json:"sourcePath,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
	Video           VideoMetadata `json:"video"`
	Progress        JobProgress   `json:"progress"`
	Stages          []StageRecord `json:"stages"`
	Error           *JobError     `json:"error,omitempty"`
	PublishedURL    string        `json:"publishedUrl,omitempty"`
	CancelRequested bool          `json:"cancelRequested,omitempty"`
	LeaseOwner      string        `json:"leaseOwner,omitempty"`
}

// VideoMetadata mirrors the probe results captured at job creation.
type VideoMetadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Format          string  `json:"format"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
	Checksum        string  `json:"checksum,omitempty"`
}

// JobProgress is the derived progress of a job.
type JobProgress struct {
	Stage                string `json:"stage"`
	Label                string `json:"label"`
	Percent              int    `json:"percent"`
	ElapsedMs            int64  `json:"elapsedMs"`
	EstimatedRemainingMs int64  `json:"estimatedRemainingMs"`
}

// StageRecord mirrors one stage of a job.
type StageRecord struct {
	Stage      string `json:"stage"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// JobError describes the failure of a job.
type JobError struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// JobStatus answers a status query for one job.
type JobStatus struct {
	JobID        string      `json:"jobId"`
	Status       string      `json:"status"`
	Progress     JobProgress `json:"progress"`
	Error        *JobError   `json:"error,omitempty"`
	PublishedURL string      `json:"publishedUrl,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	InFlight    []string       `json:"inFlight"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for stage collaborators.
type StageHealth struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StoreBackend string             `json:"storeBackend"`
	LockFilePath string             `json:"lockFilePath"`
	LogPath      string             `json:"logPath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobStatusResponse wraps a status query result.
type JobStatusResponse struct {
	Status JobStatus `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
