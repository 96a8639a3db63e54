package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/opscart/index-maint/pkg/models"
)

// Duration wraps time.Duration so config files can say "90s" or "2h"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Policy     PolicyConfig     `yaml:"policy" toml:"policy"`
	Execution  ExecutionConfig  `yaml:"execution" toml:"execution"`
	Collection CollectionConfig `yaml:"collection" toml:"collection"`
	Report     ReportConfig     `yaml:"report" toml:"report"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Log        LogConfig        `yaml:"log" toml:"log"`

	// Output
	OutputFormat string `yaml:"output" toml:"output"` // text, json, csv
	Verbose      bool   `yaml:"verbose" toml:"verbose"`
}

type DatabaseConfig struct {
	Dialect string `yaml:"dialect" toml:"dialect"`
	DSN     string `yaml:"dsn" toml:"dsn"`
	Scope   string `yaml:"scope" toml:"scope"`
	Name    string `yaml:"name" toml:"name"`

	// MetricsSource is "sql" or "prometheus"
	MetricsSource string `yaml:"metrics_source" toml:"metrics_source"`
	PrometheusURL string `yaml:"prometheus_url" toml:"prometheus_url"`
}

type PolicyConfig struct {
	ReorganizeThreshold     float64 `yaml:"reorganize_threshold" toml:"reorganize_threshold"`
	RebuildThreshold        float64 `yaml:"rebuild_threshold" toml:"rebuild_threshold"`
	MinPages                int64   `yaml:"min_pages" toml:"min_pages"`
	ExecuteActions          bool    `yaml:"execute_actions" toml:"execute_actions"`
	IncludeSecondaryObjects bool    `yaml:"include_secondary_objects" toml:"include_secondary_objects"`
}

type ExecutionConfig struct {
	CommandTimeout       Duration `yaml:"command_timeout" toml:"command_timeout"`
	MaxCommandsPerMinute int      `yaml:"max_commands_per_minute" toml:"max_commands_per_minute"`
}

type CollectionConfig struct {
	Parallelism int      `yaml:"parallelism" toml:"parallelism"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
}

type ReportConfig struct {
	Send          bool     `yaml:"send" toml:"send"`
	Channel       string   `yaml:"channel" toml:"channel"` // email, webhook, kafka, log
	SubjectPrefix string   `yaml:"subject_prefix" toml:"subject_prefix"`
	Recipients    []string `yaml:"recipients" toml:"recipients"`
	From          string   `yaml:"from" toml:"from"`
	SMTPHost      string   `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort      int      `yaml:"smtp_port" toml:"smtp_port"`
	SMTPUsername  string   `yaml:"smtp_username" toml:"smtp_username"`
	SMTPPassword  string   `yaml:"smtp_password" toml:"smtp_password"`
	WebhookURL    string   `yaml:"webhook_url" toml:"webhook_url"`
	KafkaBrokers  []string `yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic" toml:"kafka_topic"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Driver  string `yaml:"driver" toml:"driver"` // postgres, sqlite
	DSN     string `yaml:"dsn" toml:"dsn"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" toml:"pushgateway_url"`
	Job            string `yaml:"job" toml:"job"`
	TextfilePath   string `yaml:"textfile_path" toml:"textfile_path"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

const envPrefix = "INDEXMAINT_"

// NewConfig creates a new configuration with defaults, overridden by
// INDEXMAINT_* environment variables
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:       getEnv("DIALECT", "sqlserver"),
			DSN:           getEnv("DSN", ""),
			Scope:         getEnv("SCOPE", string(models.ScopeCurrent)),
			Name:          getEnv("DATABASE", ""),
			MetricsSource: getEnv("METRICS_SOURCE", "sql"),
			PrometheusURL: getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		},
		Policy: PolicyConfig{
			ReorganizeThreshold:     getEnvFloat("REORGANIZE_THRESHOLD", 10.0),
			RebuildThreshold:        getEnvFloat("REBUILD_THRESHOLD", 30.0),
			MinPages:                int64(getEnvInt("MIN_PAGES", 1000)),
			ExecuteActions:          getEnvBool("EXECUTE", true),
			IncludeSecondaryObjects: getEnvBool("INCLUDE_VIEWS", true),
		},
		Execution: ExecutionConfig{
			CommandTimeout:       Duration{getEnvDuration("COMMAND_TIMEOUT", 2*time.Hour)},
			MaxCommandsPerMinute: getEnvInt("MAX_COMMANDS_PER_MINUTE", 0),
		},
		Collection: CollectionConfig{
			Parallelism: getEnvInt("PARALLELISM", 1),
			Timeout:     Duration{getEnvDuration("COLLECTION_TIMEOUT", 5*time.Minute)},
		},
		Report: ReportConfig{
			Send:          getEnvBool("SEND_REPORT", true),
			Channel:       getEnv("REPORT_CHANNEL", "log"),
			SubjectPrefix: getEnv("SUBJECT_PREFIX", "[Index Maintenance]"),
			Recipients:    getEnvList("RECIPIENTS"),
			From:          getEnv("REPORT_FROM", "index-maint@localhost"),
			SMTPHost:      getEnv("SMTP_HOST", "localhost"),
			SMTPPort:      getEnvInt("SMTP_PORT", 587),
			SMTPUsername:  getEnv("SMTP_USERNAME", ""),
			SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
			WebhookURL:    getEnv("WEBHOOK_URL", ""),
			KafkaBrokers:  getEnvList("KAFKA_BROKERS"),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "index-maintenance"),
			Timeout:       Duration{getEnvDuration("REPORT_TIMEOUT", 30*time.Second)},
		},
		Storage: StorageConfig{
			Enabled: getEnvBool("STORAGE_ENABLED", false),
			Driver:  getEnv("STORAGE_DRIVER", "sqlite"),
			DSN:     getEnv("STORAGE_DSN", "index-maint.db"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			Job:            getEnv("METRICS_JOB", "index_maint"),
			TextfilePath:   getEnv("METRICS_TEXTFILE", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		OutputFormat: getEnv("OUTPUT", "text"),
		Verbose:      getEnvBool("VERBOSE", false),
	}
}

// Load builds the configuration: defaults, then the optional .env file,
// then the environment, then the config file when path is set
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := NewConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFile overlays a YAML or TOML file, chosen by extension. Keys absent
// from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	p := c.Policy
	if math.IsNaN(p.ReorganizeThreshold) {
		return invalid("policy.reorganize_threshold", "must be a number")
	}
	if math.IsNaN(p.RebuildThreshold) {
		return invalid("policy.rebuild_threshold", "must be a number")
	}
	if p.ReorganizeThreshold < 0 || p.ReorganizeThreshold > 100 {
		return invalid("policy.reorganize_threshold", "must be between 0 and 100")
	}
	if p.RebuildThreshold < 0 || p.RebuildThreshold > 100 {
		return invalid("policy.rebuild_threshold", "must be between 0 and 100")
	}
	if p.RebuildThreshold < p.ReorganizeThreshold {
		return invalid("policy.rebuild_threshold", "must be >= reorganize_threshold")
	}
	if p.MinPages < 0 {
		return invalid("policy.min_pages", "must not be negative")
	}

	switch models.Scope(strings.ToUpper(c.Database.Scope)) {
	case models.ScopeCurrent, models.ScopeAllEligible:
	case models.ScopeSpecific:
		if c.Database.Name == "" {
			return invalid("database.name", "required when scope is SPECIFIC")
		}
	default:
		return invalid("database.scope", fmt.Sprintf("unknown scope %q", c.Database.Scope))
	}

	switch strings.ToLower(c.Database.Dialect) {
	case "sqlserver", "mssql", "postgres", "postgresql", "mysql":
	default:
		return invalid("database.dialect", fmt.Sprintf("unsupported dialect %q", c.Database.Dialect))
	}
	if c.Database.DSN == "" {
		return invalid("database.dsn", "must be set")
	}
	switch c.Database.MetricsSource {
	case "", "sql":
	case "prometheus":
		if c.Database.PrometheusURL == "" {
			return invalid("database.prometheus_url", "required when metrics_source is prometheus")
		}
	default:
		return invalid("database.metrics_source", fmt.Sprintf("unknown source %q", c.Database.MetricsSource))
	}

	if c.Execution.CommandTimeout.Duration <= 0 {
		return invalid("execution.command_timeout", "must be positive")
	}
	if c.Execution.MaxCommandsPerMinute < 0 {
		return invalid("execution.max_commands_per_minute", "must not be negative")
	}
	if c.Collection.Parallelism < 1 {
		return invalid("collection.parallelism", "must be at least 1")
	}
	if c.Collection.Timeout.Duration <= 0 {
		return invalid("collection.timeout", "must be positive")
	}

	if c.Report.Send {
		switch c.Report.Channel {
		case "email":
			if len(c.Report.Recipients) == 0 {
				return invalid("report.recipients", "required for the email channel")
			}
			if c.Report.SMTPHost == "" {
				return invalid("report.smtp_host", "required for the email channel")
			}
		case "webhook":
			if c.Report.WebhookURL == "" {
				return invalid("report.webhook_url", "required for the webhook channel")
			}
		case "kafka":
			if len(c.Report.KafkaBrokers) == 0 || c.Report.KafkaTopic == "" {
				return invalid("report.kafka_brokers", "brokers and topic are required for the kafka channel")
			}
		case "log", "":
		default:
			return invalid("report.channel", fmt.Sprintf("unknown channel %q", c.Report.Channel))
		}
	}

	if c.Storage.Enabled {
		if c.Storage.DSN == "" {
			return invalid("storage.dsn", "must be set when storage is enabled")
		}
		switch c.Storage.Driver {
		case "postgres", "sqlite":
		default:
			return invalid("storage.driver", fmt.Sprintf("unsupported driver %q", c.Storage.Driver))
		}
	}

	switch c.OutputFormat {
	case "text", "json", "csv":
	default:
		return invalid("output", fmt.Sprintf("unsupported format %q", c.OutputFormat))
	}

	return nil
}

func invalid(field, reason string) error {
	return &models.ConfigurationError{Field: field, Reason: reason}
}

// Scope returns the normalized discovery scope
func (c *Config) Scope() models.Scope {
	return models.Scope(strings.ToUpper(c.Database.Scope))
}

// ToPolicy returns the immutable policy for a run
func (c *Config) ToPolicy() models.Policy {
	return models.Policy{
		ReorganizeThreshold:     c.Policy.ReorganizeThreshold,
		RebuildThreshold:        c.Policy.RebuildThreshold,
		MinSizeUnits:            c.Policy.MinPages,
		ExecuteActions:          c.Policy.ExecuteActions,
		IncludeSecondaryObjects: c.Policy.IncludeSecondaryObjects,
	}
}
