package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidMonth    = errors.New("month must be between 1 and 12")
	ErrInvalidYear     = errors.New("year must be between 1970 and 9999")
	ErrMissingDataRoot = errors.New("catalog root is required")
)

// Config holds all application configuration
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Parser      ParserConfig      `yaml:"parser"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Output      OutputConfig      `yaml:"output"`
	Extract     ExtractConfig     `yaml:"extract"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Status      StatusConfig      `yaml:"status"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Debug       bool              `yaml:"debug"`
}

// RunConfig selects the billing month
type RunConfig struct {
	Month int `yaml:"month"`
	Year  int `yaml:"year"`
}

// CatalogConfig describes the folder layout of the raw meter logs
type CatalogConfig struct {
	Root             string   `yaml:"root"`
	DevicePrefixes   []string `yaml:"device_prefixes"`
	FilePrefix       string   `yaml:"file_prefix"`
	RateSuffix       string   `yaml:"rate_suffix"`
	CumulativeSuffix string   `yaml:"cumulative_suffix"`
	Delimiter        string   `yaml:"delimiter"`
	// Blocks pins the block list; when empty the blocks found on disk are used.
	Blocks []string `yaml:"blocks"`
}

// ParserConfig holds log parsing options
type ParserConfig struct {
	Encoding      string `yaml:"encoding"`
	HealthMarkers bool   `yaml:"health_markers"`
}

// ProcessorConfig holds processor-related configuration
type ProcessorConfig struct {
	// WorkerCount of 0 means one worker per block, capped at the CPU count.
	WorkerCount int `yaml:"worker_count"`
}

// OutputConfig controls the files written after a run
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	CSV     bool   `yaml:"csv"`
	Parquet bool   `yaml:"parquet"`
	Reports bool   `yaml:"reports"`
}

// ExtractConfig drives single-day extraction of monthly logs
type ExtractConfig struct {
	Day   int           `yaml:"day"`
	Dir   string        `yaml:"dir"`
	Kinds []ExtractKind `yaml:"kinds"`
}

// ExtractKind pairs a file suffix with the name used for extracted files
type ExtractKind struct {
	Name   string `yaml:"name"`
	Suffix string `yaml:"suffix"`
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Org     string        `yaml:"org"`
	Token   string        `yaml:"token"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	RequestTopic string   `yaml:"request_topic"`
	SummaryTopic string   `yaml:"summary_topic"`
	GroupID      string   `yaml:"group_id"`
}

// ObjectStoreConfig holds S3-related configuration
type ObjectStoreConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	RawPrefix       string `yaml:"raw_prefix"`
	ArtifactPrefix  string `yaml:"artifact_prefix"`
	MaxRetries      int    `yaml:"max_retries"`
}

// StatusConfig holds Redis-related configuration
type StatusConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig holds Prometheus push configuration
type MetricsConfig struct {
	PushURL string `yaml:"push_url"`
	Job     string `yaml:"job"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return DefaultWithClock(clockwork.NewRealClock())
}

// DefaultWithClock returns the default configuration, billing the month
// before the one the clock is in.
func DefaultWithClock(clock clockwork.Clock) *Config {
	billing := previousMonth(clock.Now())
	return &Config{
		Run: RunConfig{
			Month: int(billing.Month()),
			Year:  billing.Year(),
		},
		Catalog: CatalogConfig{
			Root:             "data",
			DevicePrefixes:   []string{"J_B_"},
			FilePrefix:       "X01_01_",
			RateSuffix:       "BTUREADINGS11MIN.txt",
			CumulativeSuffix: "ACCBTUReadingS11MIN.txt",
			Delimiter:        ";",
		},
		Parser: ParserConfig{
			Encoding:      "auto",
			HealthMarkers: true,
		},
		Output: OutputConfig{
			Dir:     "output",
			CSV:     true,
			Parquet: true,
			Reports: true,
		},
		Extract: ExtractConfig{
			Day: 1,
			Dir: "extracted",
			Kinds: []ExtractKind{
				{Name: "RT_Data", Suffix: "BTUREADINGS11MIN.txt"},
				{Name: "RTH_Data", Suffix: "ACCBTUReadingS11MIN.txt"},
				{Name: "Flow_Data", Suffix: "FLOWS11MIN.txt"},
				{Name: "CHWST_Data", Suffix: "TEMPS1SUPPLY1MIN.txt"},
				{Name: "CHWRT_Data", Suffix: "TEMPS1RETURN1MIN.txt"},
				{Name: "DeltaTemp_Data", Suffix: "TEMPDeltaS11MIN.txt"},
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:     "http://localhost:8086",
			Org:     "smart-grid",
			Bucket:  "metering-billing",
			Timeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			RequestTopic: "metering-run-requests",
			SummaryTopic: "metering-run-summaries",
			GroupID:      "smart-grid-metering-parser",
		},
		ObjectStore: ObjectStoreConfig{
			Region:         "us-east-1",
			RawPrefix:      "raw",
			ArtifactPrefix: "reports",
			MaxRetries:     5,
		},
		Status: StatusConfig{
			Addr: "localhost:6379",
			TTL:  30 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Job: "meterparser",
		},
	}
}

// previousMonth returns the first day of the month before t.
func previousMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, -1, 0)
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Run.Month = getEnvInt("METER_MONTH", c.Run.Month)
	c.Run.Year = getEnvInt("METER_YEAR", c.Run.Year)
	c.Debug = getEnvBool("METER_DEBUG", c.Debug)

	c.Catalog.Root = getEnv("METER_DATA_ROOT", c.Catalog.Root)
	c.Catalog.DevicePrefixes = getEnvStringSlice("METER_DEVICE_PREFIXES", c.Catalog.DevicePrefixes)
	c.Catalog.FilePrefix = getEnv("METER_FILE_PREFIX", c.Catalog.FilePrefix)
	c.Catalog.RateSuffix = getEnv("METER_RT_SUFFIX", c.Catalog.RateSuffix)
	c.Catalog.CumulativeSuffix = getEnv("METER_RTH_SUFFIX", c.Catalog.CumulativeSuffix)
	c.Catalog.Delimiter = getEnv("METER_DELIMITER", c.Catalog.Delimiter)
	c.Catalog.Blocks = getEnvStringSlice("METER_BLOCKS", c.Catalog.Blocks)

	c.Parser.Encoding = getEnv("METER_ENCODING", c.Parser.Encoding)
	c.Parser.HealthMarkers = getEnvBool("METER_HEALTH_MARKERS", c.Parser.HealthMarkers)

	c.Processor.WorkerCount = getEnvInt("PROCESSOR_WORKER_COUNT", c.Processor.WorkerCount)

	c.Output.Dir = getEnv("METER_OUTPUT_DIR", c.Output.Dir)
	c.Output.CSV = getEnvBool("METER_OUTPUT_CSV", c.Output.CSV)
	c.Output.Parquet = getEnvBool("METER_OUTPUT_PARQUET", c.Output.Parquet)
	c.Output.Reports = getEnvBool("METER_OUTPUT_REPORTS", c.Output.Reports)

	c.Extract.Day = getEnvInt("METER_EXTRACT_DAY", c.Extract.Day)
	c.Extract.Dir = getEnv("METER_EXTRACT_DIR", c.Extract.Dir)

	c.InfluxDB.Enabled = getEnvBool("INFLUXDB_ENABLED", c.InfluxDB.Enabled)
	c.InfluxDB.URL = getEnv("INFLUXDB_URL", c.InfluxDB.URL)
	c.InfluxDB.Org = getEnv("INFLUXDB_ORG", c.InfluxDB.Org)
	c.InfluxDB.Token = getEnv("INFLUX_TOKEN", c.InfluxDB.Token)
	c.InfluxDB.Bucket = getEnv("INFLUXDB_BUCKET", c.InfluxDB.Bucket)
	c.InfluxDB.Timeout = getEnvDuration("INFLUXDB_TIMEOUT", c.InfluxDB.Timeout)

	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getEnvStringSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.RequestTopic = getEnv("KAFKA_REQUEST_TOPIC", c.Kafka.RequestTopic)
	c.Kafka.SummaryTopic = getEnv("KAFKA_SUMMARY_TOPIC", c.Kafka.SummaryTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.ObjectStore.Enabled = getEnvBool("S3_ENABLED", c.ObjectStore.Enabled)
	c.ObjectStore.Bucket = getEnv("S3_BUCKET", c.ObjectStore.Bucket)
	c.ObjectStore.Region = getEnv("AWS_REGION", c.ObjectStore.Region)
	c.ObjectStore.Endpoint = getEnv("S3_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.ObjectStore.AccessKeyID)
	c.ObjectStore.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.ObjectStore.SecretAccessKey)
	c.ObjectStore.RawPrefix = getEnv("S3_RAW_PREFIX", c.ObjectStore.RawPrefix)
	c.ObjectStore.ArtifactPrefix = getEnv("S3_ARTIFACT_PREFIX", c.ObjectStore.ArtifactPrefix)
	c.ObjectStore.MaxRetries = getEnvInt("S3_MAX_RETRIES", c.ObjectStore.MaxRetries)

	c.Status.Enabled = getEnvBool("REDIS_ENABLED", c.Status.Enabled)
	c.Status.Addr = getEnv("REDIS_ADDR", c.Status.Addr)
	c.Status.Password = getEnv("REDIS_PASSWORD", c.Status.Password)
	c.Status.DB = getEnvInt("REDIS_DB", c.Status.DB)
	c.Status.TTL = getEnvDuration("REDIS_STATUS_TTL", c.Status.TTL)

	c.Metrics.PushURL = getEnv("PUSHGATEWAY_URL", c.Metrics.PushURL)
	c.Metrics.Job = getEnv("PUSHGATEWAY_JOB", c.Metrics.Job)
}

// Overrides carries command line values; zero values leave the config untouched
type Overrides struct {
	Month   int
	Year    int
	Root    string
	Output  string
	Workers int
	Blocks  []string
	Debug   bool
}

// ApplyOverrides copies the non-zero override values into the config
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Month != 0 {
		c.Run.Month = o.Month
	}
	if o.Year != 0 {
		c.Run.Year = o.Year
	}
	if o.Root != "" {
		c.Catalog.Root = o.Root
	}
	if o.Output != "" {
		c.Output.Dir = o.Output
	}
	if o.Workers > 0 {
		c.Processor.WorkerCount = o.Workers
	}
	if len(o.Blocks) > 0 {
		c.Catalog.Blocks = o.Blocks
	}
	if o.Debug {
		c.Debug = true
	}
}

// Validate checks the settings every run depends on
func (c *Config) Validate() error {
	if c.Run.Month < 1 || c.Run.Month > 12 {
		return fmt.Errorf("%w: got %d", ErrInvalidMonth, c.Run.Month)
	}
	if c.Run.Year < 1970 || c.Run.Year > 9999 {
		return fmt.Errorf("%w: got %d", ErrInvalidYear, c.Run.Year)
	}
	if strings.TrimSpace(c.Catalog.Root) == "" {
		return ErrMissingDataRoot
	}
	if len(c.Catalog.DevicePrefixes) == 0 {
		return errors.New("at least one device prefix is required")
	}
	for _, p := range c.Catalog.DevicePrefixes {
		if p == "" {
			return errors.New("device prefixes must not be empty")
		}
	}
	if c.Catalog.RateSuffix == "" || c.Catalog.CumulativeSuffix == "" {
		return errors.New("rate and cumulative file suffixes are required")
	}
	if c.Catalog.Delimiter == "" {
		return errors.New("delimiter is required")
	}
	if c.Processor.WorkerCount < 0 {
		return fmt.Errorf("worker count must not be negative: %d", c.Processor.WorkerCount)
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return errors.New("influxdb url and bucket are required when influxdb is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required when kafka is enabled")
	}
	if c.ObjectStore.Enabled && c.ObjectStore.Bucket == "" {
		return errors.New("s3 bucket is required when the object store is enabled")
	}
	return nil
}

// ValidateExtract checks the settings used by day extraction
func (c *Config) ValidateExtract() error {
	if err := c.Validate(); err != nil {
		return err
	}
	days := time.Date(c.Run.Year, time.Month(c.Run.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if c.Extract.Day < 1 || c.Extract.Day > days {
		return fmt.Errorf("day must be between 1 and %d: got %d", days, c.Extract.Day)
	}
	if len(c.Extract.Kinds) == 0 {
		return errors.New("at least one extract kind is required")
	}
	return nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value == "" {
			return nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
