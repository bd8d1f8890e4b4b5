package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all ruleflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr    string `json:"listen_addr"`
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	MaxRuleDepth  int    `json:"max_rule_depth"`
	ActionTimeout string `json:"action_timeout"` // Go duration, e.g. "30s"; "0" disables
	Scheduler     bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4200",
		DBPath:        filepath.Join(ruleflowDir(), "ruleflow.db"),
		LogLevel:      "info",
		MaxRuleDepth:  5,
		ActionTimeout: "30s",
		Scheduler:     true,
	}
}

func ruleflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ruleflow"
	}
	return filepath.Join(home, ".ruleflow")
}

func settingsPath() string {
	return filepath.Join(ruleflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("RULEFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RULEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RULEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RULEFLOW_MAX_RULE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRuleDepth = n
		}
	}
	if v := os.Getenv("RULEFLOW_ACTION_TIMEOUT"); v != "" {
		cfg.ActionTimeout = v
	}
	if v := os.Getenv("RULEFLOW_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}

// actionTimeout parses the configured per-action deadline.
// "0" (or an unparsable value of "0s") disables the deadline.
func (c Config) actionTimeout() time.Duration {
	d, err := time.ParseDuration(c.ActionTimeout)
	if err != nil {
		return 0
	}
	if d <= 0 {
		return -1 // negative disables the deadline in the runner
	}
	return d
}
