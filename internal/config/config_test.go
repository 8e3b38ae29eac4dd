package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Load_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meterparser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
run:
  month: 10
  year: 2025
catalog:
  root: /srv/meters
  device_prefixes: ["J_B_", "K_B_"]
  blocks: ["82", "83"]
output:
  dir: /srv/out
  parquet: false
influxdb:
  enabled: true
  timeout: 3s
`), 0o644))

	t.Setenv("METER_YEAR", "2024")
	t.Setenv("PROCESSOR_WORKER_COUNT", "3")
	t.Setenv("METER_DELIMITER", "|")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Run.Month)
	assert.Equal(t, 2024, cfg.Run.Year)
	assert.Equal(t, "/srv/meters", cfg.Catalog.Root)
	assert.Equal(t, []string{"J_B_", "K_B_"}, cfg.Catalog.DevicePrefixes)
	assert.Equal(t, []string{"82", "83"}, cfg.Catalog.Blocks)
	assert.Equal(t, "|", cfg.Catalog.Delimiter)
	assert.Equal(t, "X01_01_", cfg.Catalog.FilePrefix)
	assert.Equal(t, "/srv/out", cfg.Output.Dir)
	assert.False(t, cfg.Output.Parquet)
	assert.True(t, cfg.Output.CSV)
	assert.Equal(t, 3, cfg.Processor.WorkerCount)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, 3*time.Second, cfg.InfluxDB.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Load_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_EnvSliceTrimsAndEmpties(t *testing.T) {
	t.Setenv("METER_BLOCKS", " 82 , 83")
	assert.Equal(t, []string{"82", "83"}, getEnvStringSlice("METER_BLOCKS", nil))

	t.Setenv("METER_BLOCKS", "")
	assert.Nil(t, getEnvStringSlice("METER_BLOCKS", []string{"x"}))
}

func TestConfig_DefaultBillsPreviousMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		now   time.Time
		month int
		year  int
	}{
		{name: "first of january rolls back a year", now: time.Date(2026, time.January, 1, 0, 5, 0, 0, time.UTC), month: 12, year: 2025},
		{name: "end of march", now: time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC), month: 2, year: 2025},
		{name: "mid october", now: time.Date(2025, time.October, 17, 12, 0, 0, 0, time.UTC), month: 9, year: 2025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultWithClock(clockwork.NewFakeClockAt(tt.now))
			assert.Equal(t, tt.month, cfg.Run.Month)
			assert.Equal(t, tt.year, cfg.Run.Year)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_ApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ApplyOverrides(Overrides{Month: 2, Year: 2024, Root: "r", Workers: 8, Blocks: []string{"1"}, Debug: true})
	assert.Equal(t, 2, cfg.Run.Month)
	assert.Equal(t, 2024, cfg.Run.Year)
	assert.Equal(t, "r", cfg.Catalog.Root)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, 8, cfg.Processor.WorkerCount)
	assert.Equal(t, []string{"1"}, cfg.Catalog.Blocks)
	assert.True(t, cfg.Debug)

	before := *cfg
	cfg.ApplyOverrides(Overrides{})
	assert.Equal(t, before, *cfg)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		errText string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "month zero", mutate: func(c *Config) { c.Run.Month = 0 }, wantErr: ErrInvalidMonth},
		{name: "month thirteen", mutate: func(c *Config) { c.Run.Month = 13 }, wantErr: ErrInvalidMonth},
		{name: "year too small", mutate: func(c *Config) { c.Run.Year = 1900 }, wantErr: ErrInvalidYear},
		{name: "empty root", mutate: func(c *Config) { c.Catalog.Root = "  " }, wantErr: ErrMissingDataRoot},
		{name: "no prefixes", mutate: func(c *Config) { c.Catalog.DevicePrefixes = nil }, errText: "device prefix"},
		{name: "empty prefix", mutate: func(c *Config) { c.Catalog.DevicePrefixes = []string{""} }, errText: "device prefixes"},
		{name: "missing suffix", mutate: func(c *Config) { c.Catalog.RateSuffix = "" }, errText: "suffixes"},
		{name: "missing delimiter", mutate: func(c *Config) { c.Catalog.Delimiter = "" }, errText: "delimiter"},
		{name: "negative workers", mutate: func(c *Config) { c.Processor.WorkerCount = -1 }, errText: "worker count"},
		{name: "influx without bucket", mutate: func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" }, errText: "influxdb"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, errText: "kafka"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.ObjectStore.Enabled = true }, errText: "s3 bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.ErrorContains(t, err, tt.errText)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateExtract(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Run.Month, cfg.Run.Year = 2, 2024

	cfg.Extract.Day = 29
	require.NoError(t, cfg.ValidateExtract())

	cfg.Extract.Day = 30
	require.ErrorContains(t, cfg.ValidateExtract(), "between 1 and 29")

	cfg.Extract.Day = 1
	cfg.Extract.Kinds = nil
	require.Error(t, cfg.ValidateExtract())
}
