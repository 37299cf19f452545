// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MailboxConfig holds IMAP connection settings for the polled inbox.
type MailboxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string

	// FetchMode is "unseen" (search UNSEEN) or "window" (scan backward in
	// sequence batches until messages fall outside the recency window).
	FetchMode string
	// Window bounds how far back the "window" fetch mode looks.
	Window time.Duration
	// BatchSize is the sequence-range size for backward scanning.
	BatchSize int
	// MarkFilteredSeen marks emails seen even when the validator drops them.
	MarkFilteredSeen bool
}

// ExtractionConfig holds settings for the LLM extraction endpoint.
type ExtractionConfig struct {
	APIKey        string
	APIURL        string
	Model         string
	MinConfidence float64
	MaxTokens     int
	Timeout       time.Duration
	SiteURL       string
	AppTitle      string
}

// Config holds all configuration for the lead ingestion service.
type Config struct {
	Mailbox    MailboxConfig
	Extraction ExtractionConfig

	// MatchMode selects the catalog matching strategy: "local" runs SQL
	// candidate queries, "ai" sends a catalog snapshot to the LLM and
	// trusts its asserted matches.
	MatchMode string

	// PollInterval is how often the pipeline runs a full pass.
	PollInterval time.Duration

	// Postgres
	DatabaseURL string

	// Redis (dedup filter + lead event queue). Optional — when empty the
	// pipeline runs without message-level dedup and without event publishing.
	RedisURL   string
	LeadsQueue string

	// Server (health + test endpoints)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailbox struct {
		Host             string `yaml:"host"`
		Port             int    `yaml:"port"`
		Username         string `yaml:"username"`
		Password         string `yaml:"password"`
		Folder           string `yaml:"folder"`
		FetchMode        string `yaml:"fetch_mode"`
		Window           string `yaml:"window"`
		BatchSize        int    `yaml:"batch_size"`
		MarkFilteredSeen *bool  `yaml:"mark_filtered_seen"`
	} `yaml:"mailbox"`
	Extraction struct {
		APIKey        string  `yaml:"api_key"`
		APIURL        string  `yaml:"api_url"`
		Model         string  `yaml:"model"`
		MinConfidence float64 `yaml:"min_confidence"`
		MaxTokens     int     `yaml:"max_tokens"`
		Timeout       string  `yaml:"timeout"`
		SiteURL       string  `yaml:"site_url"`
		AppTitle      string  `yaml:"app_title"`
	} `yaml:"extraction"`
	Matching struct {
		Mode string `yaml:"mode"`
	} `yaml:"matching"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Leads string `yaml:"leads"`
		} `yaml:"queues"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Pure environment configuration is allowed
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Mailbox: MailboxConfig{
			Host:      firstNonEmpty(raw.Mailbox.Host, envOrDefault("MAIL_HOST", "imap.gmail.com")),
			Port:      firstNonZero(raw.Mailbox.Port, envOrDefaultInt("MAIL_PORT", 993)),
			Username:  firstNonEmpty(raw.Mailbox.Username, os.Getenv("MAIL_USER")),
			Password:  firstNonEmpty(raw.Mailbox.Password, os.Getenv("MAIL_APP_PASS")),
			Folder:    firstNonEmpty(raw.Mailbox.Folder, "INBOX"),
			FetchMode: firstNonEmpty(raw.Mailbox.FetchMode, envOrDefault("MAIL_FETCH_MODE", "unseen")),
			Window:    parseDuration(raw.Mailbox.Window, envOrDefaultDuration("MAIL_WINDOW", 2*time.Minute)),
			BatchSize: firstNonZero(raw.Mailbox.BatchSize, envOrDefaultInt("MAIL_BATCH_SIZE", 10)),
		},
		Extraction: ExtractionConfig{
			APIKey:        firstNonEmpty(raw.Extraction.APIKey, os.Getenv("OPENROUTER_API_KEY")),
			APIURL:        firstNonEmpty(raw.Extraction.APIURL, envOrDefault("OPENROUTER_API_URL", "https://openrouter.ai/api/v1/chat/completions")),
			Model:         firstNonEmpty(raw.Extraction.Model, envOrDefault("OPENROUTER_MODEL", "openai/gpt-4o-mini")),
			MinConfidence: firstNonZeroFloat(raw.Extraction.MinConfidence, envOrDefaultFloat("AI_MIN_CONFIDENCE", 0.5)),
			MaxTokens:     firstNonZero(raw.Extraction.MaxTokens, envOrDefaultInt("AI_MAX_TOKENS", 5000)),
			Timeout:       parseDuration(raw.Extraction.Timeout, envOrDefaultDuration("AI_TIMEOUT", 30*time.Second)),
			SiteURL:       firstNonEmpty(raw.Extraction.SiteURL, envOrDefault("SITE_URL", "http://localhost:3000")),
			AppTitle:      firstNonEmpty(raw.Extraction.AppTitle, "Email Contact Extractor"),
		},
		MatchMode:    firstNonEmpty(raw.Matching.Mode, envOrDefault("MATCH_MODE", "local")),
		PollInterval: envOrDefaultDuration("IMAP_POLL_INTERVAL", 2*time.Minute),
		DatabaseURL:  firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:     firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		LeadsQueue:   firstNonEmpty(raw.Redis.Queues.Leads, envOrDefault("LEADS_QUEUE", "leads")),
		Port:         envOrDefaultInt("PORT", 8080),
	}

	if raw.Mailbox.MarkFilteredSeen != nil {
		cfg.Mailbox.MarkFilteredSeen = *raw.Mailbox.MarkFilteredSeen
	} else {
		cfg.Mailbox.MarkFilteredSeen = envOrDefault("MAIL_MARK_FILTERED_SEEN", "true") == "true"
	}

	if cfg.Mailbox.Username == "" || cfg.Mailbox.Password == "" {
		return nil, fmt.Errorf("mailbox credentials missing — set mailbox.username/password or MAIL_USER/MAIL_APP_PASS")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL missing — set database.url or DATABASE_URL")
	}

	if cfg.MatchMode != "local" && cfg.MatchMode != "ai" {
		return nil, fmt.Errorf("invalid matching mode %q (want \"local\" or \"ai\")", cfg.MatchMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
