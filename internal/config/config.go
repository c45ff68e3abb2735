package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
)

// EnvPrefix is the prefix of environment variables overriding configuration values, for example
// TEXTSHARD_DATA_DIR or TEXTSHARD_LOGGING_LEVEL.
const EnvPrefix = "textshard"

// IndexBackend names a storage backend for the shard mapping.
type IndexBackend string

const (
	// IndexBackendJSON keeps the mapping in a JSON file inside the data directory.
	IndexBackendJSON IndexBackend = "json"
	// IndexBackendMemory keeps the mapping in memory for the lifetime of the process.
	IndexBackendMemory IndexBackend = "memory"
	// IndexBackendPostgres keeps the mapping in a PostgreSQL table.
	IndexBackendPostgres IndexBackend = "postgres"
)

func (b IndexBackend) validate() error {
	switch b {
	case IndexBackendJSON, IndexBackendMemory, IndexBackendPostgres:
		return nil
	default:
		return fmt.Errorf("invalid index backend: %q", b)
	}
}

const (
	defaultDataDir     = "data"
	defaultIndexPath   = "mapping.json"
	defaultConcurrency = 4
	defaultCacheSize   = 128
)

// Config is a container for everything found in the TOML config file
type Config struct {
	DataDir     string     `toml:"data_dir,omitempty" split_words:"true"`
	Concurrency int        `toml:"concurrency,omitempty"`
	CacheSize   int        `toml:"cache_size,omitempty" split_words:"true"`
	Index       Index      `toml:"index,omitempty"`
	Logging     Logging    `toml:"logging,omitempty"`
	Prometheus  Prometheus `toml:"prometheus,omitempty"`
	Sentry      Sentry     `toml:"sentry,omitempty"`
}

// Index configures where the shard mapping is persisted.
type Index struct {
	Backend IndexBackend `toml:"backend,omitempty"`
	// Path is the location of the JSON index file. Relative paths are resolved against the
	// data directory.
	Path     string `toml:"path,omitempty"`
	Database DB     `toml:"database,omitempty"`
}

// DB holds Postgres client configuration data.
type DB struct {
	Host        string `toml:"host,omitempty"`
	Port        int    `toml:"port,omitempty"`
	User        string `toml:"user,omitempty"`
	Password    string `toml:"password,omitempty"`
	DBName      string `toml:"dbname,omitempty"`
	SSLMode     string `toml:"sslmode,omitempty"`
	SSLCert     string `toml:"sslcert,omitempty"`
	SSLKey      string `toml:"sslkey,omitempty"`
	SSLRootCert string `toml:"sslrootcert,omitempty"`
}

// Logging contains logging configuration values
type Logging struct {
	Dir    string `toml:"dir,omitempty"`
	Format string `toml:"format,omitempty"`
	Level  string `toml:"level,omitempty"`
}

// Prometheus contains metrics configuration values
type Prometheus struct {
	// Textfile is the path metrics are written to once a command finished. Metrics are not
	// exported if it is empty.
	Textfile string `toml:"textfile,omitempty"`
	// LatencyBuckets configures the buckets of the operation duration histogram.
	LatencyBuckets []float64 `toml:"latency_buckets,omitempty" split_words:"true"`
}

// Sentry contains error reporting configuration values
type Sentry struct {
	DSN         string `toml:"dsn,omitempty"`
	Environment string `toml:"environment,omitempty"`
}

// Default returns the configuration used when no configuration file is given.
func Default() Config {
	cfg := Config{}
	cfg.setDefaults()
	return cfg
}

// FromFile loads the config for the passed file path. Environment variables prefixed with
// TEXTSHARD_ take precedence over values from the file.
func FromFile(filePath string) (Config, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	return Load(b)
}

// Load parses TOML configuration, applies environment overrides and defaults.
func Load(raw []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("load toml: %w", err)
	}

	if err := cfg.applyEnvironment(); err != nil {
		return Config{}, err
	}

	cfg.setDefaults()

	return cfg, nil
}

// FromEnvironment returns the default configuration with environment overrides applied.
func FromEnvironment() (Config, error) {
	var cfg Config
	if err := cfg.applyEnvironment(); err != nil {
		return Config{}, err
	}

	cfg.setDefaults()

	return cfg, nil
}

func (c *Config) applyEnvironment() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("envconfig: %w", err)
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}

	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}

	if c.CacheSize == 0 {
		c.CacheSize = defaultCacheSize
	}

	if c.Index.Backend == "" {
		c.Index.Backend = IndexBackendJSON
	}

	if c.Index.Path == "" {
		c.Index.Path = defaultIndexPath
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var (
	errNoDataDir          = errors.New("data_dir is not configured")
	errInvalidConcurrency = errors.New("concurrency must be at least 1")
	errInvalidCacheSize   = errors.New("cache_size must not be negative")
	errNoDatabase         = errors.New("index.database.dbname is required by the postgres backend")
	errIndexInsideShards  = errors.New("index.path must not look like a shard file")
)

// Validate establishes if the config is valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errNoDataDir
	}

	if c.Concurrency < 1 {
		return errInvalidConcurrency
	}

	if c.CacheSize < 0 {
		return errInvalidCacheSize
	}

	if err := c.Index.Backend.validate(); err != nil {
		return err
	}

	if c.Index.Backend == IndexBackendPostgres && c.Index.Database.DBName == "" {
		return errNoDatabase
	}

	if strings.HasSuffix(c.Index.Path, ".txt") {
		return errIndexInsideShards
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	return nil
}

// IndexPath returns the absolute or data directory relative location of the JSON index.
func (c *Config) IndexPath() string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}

	return filepath.Join(c.DataDir, c.Index.Path)
}

// DSN compiles the database configuration into a data source name with lib/pq specifics.
func (db DB) DSN() string {
	var fields []string
	if db.Port > 0 {
		fields = append(fields, fmt.Sprintf("port=%d", db.Port))
	}

	for _, kv := range []struct{ key, value string }{
		{"host", db.Host},
		{"user", db.User},
		{"password", db.Password},
		{"dbname", db.DBName},
		{"sslmode", db.SSLMode},
		{"sslcert", db.SSLCert},
		{"sslkey", db.SSLKey},
		{"sslrootcert", db.SSLRootCert},
		{"binary_parameters", "yes"},
	} {
		if len(kv.value) == 0 {
			continue
		}

		kv.value = strings.ReplaceAll(kv.value, "'", `\'`)
		kv.value = strings.ReplaceAll(kv.value, " ", `\ `)

		fields = append(fields, kv.key+"="+kv.value)
	}

	return strings.Join(fields, " ")
}
