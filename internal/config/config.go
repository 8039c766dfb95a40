// Package config provides configuration management for the reformat commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Job names, in default execution order.
const (
	JobSensor   = "sensor"
	JobEventLog = "eventlog"
	JobAudit    = "audit"
)

// Config is the master configuration struct.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Jobs       JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	DLQ        DLQConfig        `mapstructure:"dlq" yaml:"dlq"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch" yaml:"opensearch"`
	NATS       NATSConfig       `mapstructure:"nats" yaml:"nats"`
	Forward    ForwardConfig    `mapstructure:"forward" yaml:"forward"`
	Syslog     SyslogConfig     `mapstructure:"syslog" yaml:"syslog"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// JobsConfig holds the category jobs and the order they run in.
type JobsConfig struct {
	Order    []string  `mapstructure:"order" yaml:"order"`
	Sensor   JobConfig `mapstructure:"sensor" yaml:"sensor"`
	EventLog JobConfig `mapstructure:"eventlog" yaml:"eventlog"`
	Audit    JobConfig `mapstructure:"audit" yaml:"audit"`
}

// JobConfig describes one log family's input directory and the output
// directory of every category it routes to.
type JobConfig struct {
	Enabled  bool              `mapstructure:"enabled" yaml:"enabled"`
	InputDir string            `mapstructure:"input_dir" yaml:"input_dir"`
	Outputs  map[string]string `mapstructure:"outputs" yaml:"outputs"`
}

// Get returns the job configuration by name.
func (j JobsConfig) Get(name string) (JobConfig, bool) {
	switch name {
	case JobSensor:
		return j.Sensor, true
	case JobEventLog:
		return j.EventLog, true
	case JobAudit:
		return j.Audit, true
	}
	return JobConfig{}, false
}

// OutputConfig controls how records are written.
type OutputConfig struct {
	// RecordSeparator is written after every record. Empty keeps records
	// back to back, matching historical output files.
	RecordSeparator  string `mapstructure:"record_separator" yaml:"record_separator"`
	CompressionLevel int    `mapstructure:"compression_level" yaml:"compression_level"`
}

// DLQConfig holds rejected line queue configuration
type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	// Textfile is the node exporter textfile path. Empty disables export.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// RedisConfig holds the enrichment store connection
type RedisConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	FieldPrefix string `mapstructure:"field_prefix" yaml:"field_prefix"`
}

// OpenSearchConfig holds OpenSearch connection settings
type OpenSearchConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify" yaml:"tls_skip_verify"`
	IndexPrefix   string `mapstructure:"index_prefix" yaml:"index_prefix"`
	FlushBytes    int    `mapstructure:"flush_bytes" yaml:"flush_bytes"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Subject       string        `mapstructure:"subject" yaml:"subject"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
}

// ForwardConfig holds unix socket forwarding configuration
type ForwardConfig struct {
	Socket string `mapstructure:"socket" yaml:"socket"`
	// Rate is the maximum number of lines per second. Zero means unlimited.
	Rate float64 `mapstructure:"rate" yaml:"rate"`
}

// SyslogConfig holds legacy syslog replay configuration
type SyslogConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Load reads configuration from path, or from $REFORMAT_CONFIG_DIR/config.yaml
// when path is empty, then applies REFORMAT_* environment overrides. A missing
// default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		dir := os.Getenv("REFORMAT_CONFIG_DIR")
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("REFORMAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("jobs.order", []string{JobSensor, JobEventLog, JobAudit})

	v.SetDefault("jobs.sensor.enabled", true)
	v.SetDefault("jobs.sensor.input_dir", "./xs19-tr-suricata")
	v.SetDefault("jobs.sensor.outputs", map[string]string{
		"alert":     "./reformat/xs19-tr-alert",
		"protocols": "./reformat/xs19-tr-protocols",
		"stats":     "./reformat/xs19-tr-stats",
		"flow":      "./reformat/xs19-tr-flow",
	})

	v.SetDefault("jobs.eventlog.enabled", true)
	v.SetDefault("jobs.eventlog.input_dir", "./xs19-tr-windows")
	v.SetDefault("jobs.eventlog.outputs", map[string]string{
		"windows": "./reformat/xs19-tr-windows",
		"sysmon":  "./reformat/xs19-tr-sysmon",
	})

	v.SetDefault("jobs.audit.enabled", true)
	v.SetDefault("jobs.audit.input_dir", "./xs19-tr-linux")
	v.SetDefault("jobs.audit.outputs", map[string]string{
		"linux":  "./reformat/xs19-tr-linux",
		"snoopy": "./reformat/xs19-tr-snoopy",
	})

	v.SetDefault("output.record_separator", "")
	v.SetDefault("output.compression_level", -1)

	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.base_path", "./reformat/dlq")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.field_prefix", "peek")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index_prefix", "reformat")
	v.SetDefault("opensearch.flush_bytes", 5*1024*1024)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "reformat.synthetic")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("forward.socket", "/tmp/reformat.sock")
	v.SetDefault("forward.rate", 0)

	v.SetDefault("syslog.host", "localhost")
	v.SetDefault("syslog.port", 514)
}

// Validate checks the fields every run depends on.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Output.CompressionLevel < -2 || c.Output.CompressionLevel > 9 {
		return fmt.Errorf("output.compression_level must be between -2 and 9, got %d", c.Output.CompressionLevel)
	}

	seen := make(map[string]bool, len(c.Jobs.Order))
	for _, name := range c.Jobs.Order {
		job, ok := c.Jobs.Get(name)
		if !ok {
			return fmt.Errorf("jobs.order: unknown job %q", name)
		}
		if seen[name] {
			return fmt.Errorf("jobs.order: job %q listed twice", name)
		}
		seen[name] = true

		if !job.Enabled {
			continue
		}
		if job.InputDir == "" {
			return fmt.Errorf("jobs.%s.input_dir is required", name)
		}
		if len(job.Outputs) == 0 {
			return fmt.Errorf("jobs.%s.outputs is required", name)
		}
	}

	if c.DLQ.Enabled && c.DLQ.BasePath == "" {
		return errors.New("dlq.base_path is required when the dlq is enabled")
	}
	return nil
}

// Example renders the default configuration as YAML.
func Example() ([]byte, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal example config: %w", err)
	}
	return data, nil
}
