// Package config loads the engine's runtime configuration from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crewforge/engine/internal/domain"
)

// ProviderConfig defines how to launch a content-generation provider process.
type ProviderConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	Project              string                    `json:"project"`
	DataDir              string                    `json:"data_dir"`
	DBPath               string                    `json:"db_path"`
	RolesPath            string                    `json:"roles_path"`
	ListenAddr           string                    `json:"listen_addr"`
	AuthorityRole        string                    `json:"authority_role"`
	Resolver             string                    `json:"resolver"`
	RemediationRole      string                    `json:"remediation_role"`
	MaxRemediationRounds int                       `json:"max_remediation_rounds"`
	TaskDeadlineSec      int                       `json:"task_deadline_sec"`
	WatchIntervalSec     int                       `json:"watch_interval_sec"`
	QueueDepth           int                       `json:"queue_depth"`
	HistorySize          int                       `json:"history_size"`
	Provider             string                    `json:"provider"`
	Providers            map[string]ProviderConfig `json:"providers"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a runnable configuration rooted at dir, used when no
// config file is given.
func Default(dir string) *Config {
	cfg := &Config{DataDir: dir}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Project == "" {
		c.Project = "project"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "engine.db")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9700"
	}
	if c.AuthorityRole == "" {
		c.AuthorityRole = "orchestrator"
	}
	if c.Resolver == "" {
		c.Resolver = "human"
	}
	if c.RemediationRole == "" {
		c.RemediationRole = "backend"
	}
	if c.MaxRemediationRounds == 0 {
		c.MaxRemediationRounds = 3
	}
	if c.TaskDeadlineSec == 0 {
		c.TaskDeadlineSec = 600
	}
	if c.WatchIntervalSec == 0 {
		c.WatchIntervalSec = 10
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 64
	}
	if c.HistorySize == 0 {
		c.HistorySize = 100
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.MaxRemediationRounds < 0 {
		problems = append(problems, "max_remediation_rounds must not be negative")
	}
	if c.TaskDeadlineSec < 0 {
		problems = append(problems, "task_deadline_sec must not be negative")
	}
	if c.Provider != "" {
		if _, ok := c.Providers[c.Provider]; !ok {
			problems = append(problems, fmt.Sprintf("provider %q is not defined in providers", c.Provider))
		}
	}
	for name, p := range c.Providers {
		if p.Command == "" {
			problems = append(problems, fmt.Sprintf("provider %q has no command", name))
		}
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
