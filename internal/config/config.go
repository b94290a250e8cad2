package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/classifier"
	"reelforge/internal/stage"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`

	// WorkRetentionDays bounds how long finished jobs keep their work
	// directory. Zero keeps them forever.
	WorkRetentionDays int `toml:"work_retention_days"`
}

// Store selects and configures the job store backend.
type Store struct {
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	DatabaseURL string `toml:"database_url"`
}

// Workflow contains orchestration timing, retry, and timeout settings.
// Durations are whole seconds unless the key says otherwise.
type Workflow struct {
	Workers             int            `toml:"workers" validate:"gte=1,lte=64"`
	QueuePollInterval   int            `toml:"queue_poll_interval" validate:"gt=0"`
	ErrorRetryInterval  int            `toml:"error_retry_interval" validate:"gt=0"`
	HeartbeatInterval   int            `toml:"heartbeat_interval" validate:"gt=0"`
	LeaseTimeout        int            `toml:"lease_timeout" validate:"gtfield=HeartbeatInterval"`
	MaxAttempts         int            `toml:"max_attempts" validate:"gte=1,lte=10"`
	RetryBaseDelayMs    int            `toml:"retry_base_delay_ms" validate:"gt=0"`
	DefaultStageTimeout int            `toml:"default_stage_timeout" validate:"gt=0"`
	StageTimeouts       map[string]int `toml:"stage_timeouts" validate:"dive,gt=0"`
}

// Commands holds argv templates for the external collaborators. Templates
// may reference {input}, {output}, {job}, and {workdir}.
type Commands struct {
	AutoEdit         []string `toml:"auto_edit"`
	Transcribe       []string `toml:"transcribe"`
	DetectHighlights []string `toml:"detect_highlights"`
	GeneratePlan     []string `toml:"generate_plan"`
	AcquireBroll     []string `toml:"acquire_broll"`
	Render           []string `toml:"render"`
	Publish          []string `toml:"publish"`
}

// TranscriptStore configures the spreadsheet-backed transcript endpoint.
type TranscriptStore struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Planner configures the chat-completion model that detects highlights and
// drafts editing plans for stages with no command configured.
type Planner struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxHighlights  int    `toml:"max_highlights"`
}

// Enabled reports whether a key and model are configured.
func (p Planner) Enabled() bool {
	return p.APIKey != "" && p.Model != ""
}

// Media contains media probing settings.
type Media struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	StageSkipped   bool   `toml:"stage_skipped"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reelforge.
//
// Configuration sections by subsystem:
//   - Paths: work/log directories and API bind address
//   - Store: job store backend selection
//   - Workflow: worker count, polling, leases, retries, stage timeouts
//   - Commands: collaborator command templates
//   - TranscriptStore: transcript persistence endpoint
//   - Planner: LLM highlight detection and plan drafting
//   - Media: ffprobe location
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths           Paths           `toml:"paths"`
	Store           Store           `toml:"store"`
	Workflow        Workflow        `toml:"workflow"`
	Commands        Commands        `toml:"commands"`
	TranscriptStore TranscriptStore `toml:"transcript_store"`
	Planner         Planner         `toml:"planner"`
	Media           Media           `toml:"media"`
	Notifications   Notifications   `toml:"notifications"`
	Logging         Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath != "" {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobWorkDir returns the artifact directory for a job.
func (c *Config) JobWorkDir(jobID string) string {
	return filepath.Join(c.Paths.WorkDir, jobID)
}

// WorkRetention returns the work directory retention as a duration.
func (c *Config) WorkRetention() time.Duration {
	return time.Duration(c.Paths.WorkRetentionDays) * 24 * time.Hour
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "reelforged.lock")
}

// StageTimeout returns the collaborator timeout for a stage, falling back to
// the workflow default.
func (c *Config) StageTimeout(id stage.ID) time.Duration {
	if secs, ok := c.Workflow.StageTimeouts[string(id)]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(c.Workflow.DefaultStageTimeout) * time.Second
}

// RetryPolicy returns the classifier policy configured for the workflow.
func (c *Config) RetryPolicy() classifier.Policy {
	return classifier.Policy{
		MaxAttempts: c.Workflow.MaxAttempts,
		BaseDelay:   time.Duration(c.Workflow.RetryBaseDelayMs) * time.Millisecond,
	}
}

// PollInterval returns how often the daemon scans the store for runnable jobs.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// HeartbeatInterval returns how often a run renews its lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// LeaseTTL returns how long a lease lives without renewal.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Workflow.LeaseTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
