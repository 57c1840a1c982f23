package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	def := DefaultEngineSettings()
	if cfg.Engine.MonitoringInterval == 0 {
		cfg.Engine.MonitoringInterval = def.MonitoringInterval
	}
	if cfg.Engine.MinMemberDelay == 0 {
		cfg.Engine.MinMemberDelay = def.MinMemberDelay
	}
	if cfg.Engine.MaxMemberDelay == 0 {
		cfg.Engine.MaxMemberDelay = def.MaxMemberDelay
	}
	if cfg.Engine.BackoffGeneral == 0 {
		cfg.Engine.BackoffGeneral = def.BackoffGeneral
	}
	if cfg.Engine.Backoff429 == 0 {
		cfg.Engine.Backoff429 = def.Backoff429
	}
	if cfg.Engine.RequestTimeout == 0 {
		cfg.Engine.RequestTimeout = def.RequestTimeout
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = def.MaxRetries
	}
	if cfg.Documents.BaseDir == "" {
		cfg.Documents.BaseDir = "documents"
	}
}
