// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/carousel/config.yaml",
	"/etc/carousel/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied: a 3-hour
// pinning interval, a 12-hour repeat block with a 72-hour prune horizon,
// and a minimum of 10 items per collection.
func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			URL:     "",
			Token:   "",
			Timeout: 90 * time.Second,
		},
		Pinning: PinningConfig{
			Interval:              180 * time.Minute,
			Libraries:             []string{},
			PinsPerLibrary:        map[string]int{},
			Label:                 "Carousel",
			MinItems:              10,
			RepeatBlock:           12 * time.Hour,
			ResetHorizon:          72 * time.Hour,
			ExclusionList:         []string{},
			RegexExclusions:       []string{},
			InclusionList:         []string{},
			Specials:              []SpecialConfig{},
			Categories:            map[string][]CategoryConfig{},
			UseRandomCategoryMode: false,
			CategorySkipPercent:   70,
			DryRun:                false,
		},
		Notify: NotifyConfig{
			WebhookURL:    "",
			Timeout:       15 * time.Second,
			RatePerMinute: 30,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5800,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		History: HistoryConfig{
			Path:       "/data/pin_history.json",
			StatusPath: "/data/status.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from environment variables.
var sliceConfigPaths = []string{
	"pinning.libraries",
	"pinning.exclusion_list",
	"pinning.regex_exclusions",
	"pinning.inclusion_list",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise cannot
// pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"plex_url":     "plex.url",
		"plex_token":   "plex.token",
		"plex_timeout": "plex.timeout",

		"pinning_interval":         "pinning.interval",
		"pinning_libraries":        "pinning.libraries",
		"pinning_label":            "pinning.label",
		"pinning_min_items":        "pinning.min_items",
		"repeat_block":             "pinning.repeat_block",
		"reset_horizon":            "pinning.reset_horizon",
		"exclusion_list":           "pinning.exclusion_list",
		"regex_exclusions":         "pinning.regex_exclusions",
		"inclusion_list":           "pinning.inclusion_list",
		"use_random_category_mode": "pinning.use_random_category_mode",
		"category_skip_percent":    "pinning.category_skip_percent",
		"dry_run":                  "pinning.dry_run",

		"webhook_url":             "notify.webhook_url",
		"webhook_timeout":         "notify.timeout",
		"webhook_rate_per_minute": "notify.rate_per_minute",

		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",

		"history_path": "history.path",
		"status_path":  "history.status_path",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
