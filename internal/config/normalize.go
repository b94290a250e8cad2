package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeCommands()
	c.normalizeTranscriptStore()
	c.normalizePlanner()
	c.normalizeMedia()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WorkRetentionDays < 0 {
		c.Paths.WorkRetentionDays = 0
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("REELFORGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case "", "sqlite", "sqlite3":
		c.Store.Backend = BackendSQLite
	case "postgres", "postgresql", "pg":
		c.Store.Backend = BackendPostgres
	}
	if value, ok := os.LookupEnv("REELFORGE_DATABASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Store.DatabaseURL = strings.TrimSpace(value)
	}
	c.Store.DatabaseURL = strings.TrimSpace(c.Store.DatabaseURL)
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.StageTimeouts == nil {
		c.Workflow.StageTimeouts = map[string]int{}
	}
	normalized := make(map[string]int, len(c.Workflow.StageTimeouts))
	for key, value := range c.Workflow.StageTimeouts {
		key = strings.NewReplacer("_", "-").Replace(strings.ToLower(strings.TrimSpace(key)))
		normalized[key] = value
	}
	c.Workflow.StageTimeouts = normalized
}

func (c *Config) normalizeCommands() {
	trim := func(argv []string) []string {
		out := make([]string, 0, len(argv))
		for _, arg := range argv {
			if arg = strings.TrimSpace(arg); arg != "" {
				out = append(out, arg)
			}
		}
		return out
	}
	c.Commands.AutoEdit = trim(c.Commands.AutoEdit)
	c.Commands.Transcribe = trim(c.Commands.Transcribe)
	c.Commands.DetectHighlights = trim(c.Commands.DetectHighlights)
	c.Commands.GeneratePlan = trim(c.Commands.GeneratePlan)
	c.Commands.AcquireBroll = trim(c.Commands.AcquireBroll)
	c.Commands.Render = trim(c.Commands.Render)
	c.Commands.Publish = trim(c.Commands.Publish)
}

func (c *Config) normalizeTranscriptStore() {
	c.TranscriptStore.URL = strings.TrimSpace(c.TranscriptStore.URL)
	if c.TranscriptStore.URL == "" {
		if value, ok := os.LookupEnv("GOOGLE_APPS_SCRIPT_API_URL"); ok {
			c.TranscriptStore.URL = strings.TrimSpace(value)
		}
	}
	if c.TranscriptStore.TimeoutSeconds <= 0 {
		c.TranscriptStore.TimeoutSeconds = defaultTranscriptTimeout
	}
}

func (c *Config) normalizePlanner() {
	c.Planner.APIKey = strings.TrimSpace(c.Planner.APIKey)
	if c.Planner.APIKey == "" {
		if value, ok := os.LookupEnv("REELFORGE_LLM_API_KEY"); ok {
			c.Planner.APIKey = strings.TrimSpace(value)
		}
	}
	c.Planner.Model = strings.TrimSpace(c.Planner.Model)
	c.Planner.BaseURL = strings.TrimSpace(c.Planner.BaseURL)
	if c.Planner.BaseURL == "" {
		c.Planner.BaseURL = defaultPlannerBaseURL
	}
	if c.Planner.TimeoutSeconds <= 0 {
		c.Planner.TimeoutSeconds = defaultPlannerTimeout
	}
	if c.Planner.MaxHighlights <= 0 {
		c.Planner.MaxHighlights = defaultMaxHighlights
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("REELFORGE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
