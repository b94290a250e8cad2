package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/queue"
	"reelforge/internal/queueaccess"
)

const defaultEnvFile = ".env"

type commandContext struct {
	configFlag *string
	envFlag    *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, envFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		apiFlag:    apiFlag,
	}
}

// loadEnv applies an env file before config resolution so the env fallbacks
// in config see its values. Variables already set in the process win.
func (c *commandContext) loadEnv() error {
	path := flagValue(c.envFlag)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", defaultEnvFile, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if bind := flagValue(c.apiFlag); bind != "" {
			cfg.Paths.APIBind = bind
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// withAccess runs fn against the daemon API when a daemon answers, and
// against the job store otherwise.
func (c *commandContext) withAccess(cmd *cobra.Command, fn func(queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	session, err := queueaccess.OpenWithFallback(ctx,
		func() (*api.Client, error) { return api.NewClientFromConfig(cfg) },
		func() (queue.Store, error) { return queueaccess.OpenStore(ctx, cfg) },
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

// withStore opens the configured job store directly.
func (c *commandContext) withStore(ctx context.Context, fn func(queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queueaccess.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
