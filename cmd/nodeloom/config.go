package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all nodeloom server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	OpenAIAPIKey     string `json:"openai_api_key"`
	OpenAIBaseURL    string `json:"openai_base_url"`
	DefaultModel     string `json:"default_model"`
	ModelConcurrency int    `json:"model_concurrency"`
	MaxSteps         int    `json:"max_steps"`
	Scheduler        bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(nodeloomDir(), "nodeloom.db"),
		LogLevel:         "info",
		DefaultModel:     "gpt-4o-mini",
		ModelConcurrency: 2,
		Scheduler:        true,
	}
}

func nodeloomDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodeloom"
	}
	return filepath.Join(home, ".nodeloom")
}

func settingsPath() string {
	return filepath.Join(nodeloomDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("NODELOOM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NODELOOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("NODELOOM_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("NODELOOM_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("NODELOOM_MODEL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ModelConcurrency = n
		}
	}
	if v := os.Getenv("NODELOOM_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv("NODELOOM_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
