package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"reelforge/internal/stage"
)

var validate = validator.New()

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCommands(); err != nil {
		return err
	}
	if err := c.validateTranscriptStore(); err != nil {
		return err
	}
	if err := c.validatePlanner(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set for the sqlite backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url must be set for the postgres backend (or set REELFORGE_DATABASE_URL)")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q is not one of sqlite, postgres, memory", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := validate.Struct(c.Workflow); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("workflow.%s fails %q constraint (value %v)", tomlKey(fe.StructField()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("workflow: %w", err)
	}
	for key := range c.Workflow.StageTimeouts {
		if _, err := stage.Parse(key); err != nil {
			return fmt.Errorf("workflow.stage_timeouts: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCommands() error {
	for name, argv := range map[string][]string{
		"commands.auto_edit":         c.Commands.AutoEdit,
		"commands.transcribe":        c.Commands.Transcribe,
		"commands.detect_highlights": c.Commands.DetectHighlights,
		"commands.generate_plan":     c.Commands.GeneratePlan,
		"commands.acquire_broll":     c.Commands.AcquireBroll,
		"commands.render":            c.Commands.Render,
		"commands.publish":           c.Commands.Publish,
	} {
		if len(argv) == 0 {
			continue
		}
		if strings.Contains(argv[0], "{") {
			return fmt.Errorf("%s: program name must not be a placeholder", name)
		}
	}
	return nil
}

func (c *Config) validateTranscriptStore() error {
	if c.TranscriptStore.URL == "" {
		return nil
	}
	parsed, err := url.Parse(c.TranscriptStore.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("transcript_store.url %q is not an absolute URL", c.TranscriptStore.URL)
	}
	return nil
}

func (c *Config) validatePlanner() error {
	if !c.Planner.Enabled() {
		return nil
	}
	parsed, err := url.Parse(c.Planner.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("planner.base_url %q is not an absolute URL", c.Planner.BaseURL)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

// tomlKey maps a Go field name to its snake_case TOML key.
func tomlKey(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
