package config

import (
	"fmt"
	"time"

	"github.com/anemtools/rdvwatcher/internal/infra/storage/postgres"
	"github.com/anemtools/rdvwatcher/internal/notify"
)

// Duration is a yaml-friendly wrapper accepting either a Go duration
// string ("90s", "2m") or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := unmarshal(&secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Service   ServiceConfig      `yaml:"service"`
	Engine    EngineSettings     `yaml:"engine"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     notify.RedisConfig `yaml:"redis"`
	Documents DocumentsConfig    `yaml:"documents"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ServiceConfig identifies the upstream service.
type ServiceConfig struct {
	BaseURL      string `yaml:"base_url"`
	SiteCheckURL string `yaml:"site_check_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DocumentsConfig controls where retrieved documents are written.
type DocumentsConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// EngineSettings are the runtime-tunable knobs of the monitor and the
// gateway. A settings value is immutable once handed to the engine;
// updates replace the whole struct and take effect on the next
// scheduling decision or gateway call.
type EngineSettings struct {
	MonitoringInterval Duration `yaml:"monitoring_interval"`
	MinMemberDelay     Duration `yaml:"min_member_delay"`
	MaxMemberDelay     Duration `yaml:"max_member_delay"`
	BackoffGeneral     Duration `yaml:"backoff_general"`
	Backoff429         Duration `yaml:"backoff_429"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	MaxRetries         int      `yaml:"max_retries"`
}

// DefaultEngineSettings mirror the loader defaults, for callers that
// construct the engine without a config file.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		MonitoringInterval: Duration(30 * time.Minute),
		MinMemberDelay:     Duration(5 * time.Second),
		MaxMemberDelay:     Duration(15 * time.Second),
		BackoffGeneral:     Duration(2 * time.Second),
		Backoff429:         Duration(10 * time.Second),
		RequestTimeout:     Duration(15 * time.Second),
		MaxRetries:         3,
	}
}
