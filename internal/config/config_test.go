package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/reformat/internal/config"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, []string{"sensor", "eventlog", "audit"}, cfg.Jobs.Order)
	assert.Equal(t, "./xs19-tr-linux", cfg.Jobs.Audit.InputDir)
	assert.Equal(t, "./reformat/xs19-tr-snoopy", cfg.Jobs.Audit.Outputs["snoopy"])
	assert.Len(t, cfg.Jobs.Sensor.Outputs, 4)
	assert.Equal(t, "", cfg.Output.RecordSeparator)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: text
jobs:
  order: [audit]
  audit:
    input_dir: /data/linux
    outputs:
      linux: /out/linux
      snoopy: /out/snoopy
output:
  record_separator: "\n"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("REFORMAT_SYSLOG_PORT", "5514")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, []string{"audit"}, cfg.Jobs.Order)
	assert.Equal(t, "/data/linux", cfg.Jobs.Audit.InputDir)
	assert.Equal(t, "/out/snoopy", cfg.Jobs.Audit.Outputs["snoopy"])
	assert.Equal(t, "\n", cfg.Output.RecordSeparator)
	assert.Equal(t, 5514, cfg.Syslog.Port)
	assert.True(t, cfg.Jobs.Audit.Enabled, "defaults are kept for keys the file omits")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingDefaultFileIsFine(t *testing.T) {
	t.Setenv("REFORMAT_CONFIG_DIR", t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"bad level", func(c *config.Config) { c.Output.CompressionLevel = 12 }},
		{"unknown job", func(c *config.Config) { c.Jobs.Order = []string{"dns"} }},
		{"duplicate job", func(c *config.Config) { c.Jobs.Order = []string{"audit", "audit"} }},
		{"no input", func(c *config.Config) { c.Jobs.Audit.InputDir = "" }},
		{"no outputs", func(c *config.Config) { c.Jobs.Sensor.Outputs = nil }},
		{"dlq without path", func(c *config.Config) { c.DLQ.Enabled = true; c.DLQ.BasePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DisabledJobSkipsChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.Audit.Enabled = false
	cfg.Jobs.Audit.InputDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestExample(t *testing.T) {
	data, err := config.Example()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "jobs")
	assert.Contains(t, string(data), "xs19-tr-suricata")
}
