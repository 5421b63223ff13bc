package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	Server    ServerConf    `yaml:"server"`
	Database  DatabaseConf  `yaml:"database"`
	Engine    EngineConf    `yaml:"engine"`
	Scheduler SchedulerConf `yaml:"scheduler"`
	Log       LogConf       `yaml:"log"`
	// RulesFile optionally points at a declarative rules YAML that is
	// synced into the rule store at boot and on change.
	RulesFile string `yaml:"rules_file"`
}

type ServerConf struct {
	Addr string `yaml:"addr"`
}

type DatabaseConf struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// EngineConf holds tunable concurrency and retry settings.
type EngineConf struct {
	Workers        int `yaml:"workers"`
	QueueDepth     int `yaml:"queue_depth"`
	JobTimeoutMs   int `yaml:"job_timeout_ms"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

type SchedulerConf struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

type LogConf struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when fields are omitted.
func Default() Config {
	return Config{
		Server:    ServerConf{Addr: ":8080"},
		Database:  DatabaseConf{Driver: "sqlite", DSN: "ruleflow.db"},
		Engine:    EngineConf{Workers: 8, QueueDepth: 256, JobTimeoutMs: 30000, MaxRetries: 3, RetryBackoffMs: 500},
		Scheduler: SchedulerConf{Enabled: true, IntervalSeconds: 60},
		Log:       LogConf{Level: "info", Output: "stdout"},
	}
}

// Load reads path and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and sane bounds.
func (c *Config) Validate() error {
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("config: engine.workers must be positive")
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("config: engine.queue_depth must be positive")
	}
	if c.Engine.JobTimeoutMs <= 0 {
		return fmt.Errorf("config: engine.job_timeout_ms must be positive")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("config: engine.max_retries must not be negative")
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("config: scheduler.interval_seconds must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}
