// Package config loads gearcore settings from a YAML file and GEARCORE_*
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gearcore/internal/blob"
)

// Storage drivers accepted by StorageConfig.Driver.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Metrics exporters accepted by MetricsConfig.Driver.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// Config is the root document.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Blob       BlobConfig       `yaml:"blob"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sync       SyncConfig       `yaml:"sync"`
	Categories []CategoryConfig `yaml:"categories"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type BlobConfig struct {
	Driver string        `yaml:"driver"`
	FSRoot string        `yaml:"fs_root"`
	S3     blob.S3Config `yaml:"s3"`
}

// Settings converts the section into blob.Open input.
func (b BlobConfig) Settings() blob.Settings {
	return blob.Settings{Driver: blob.Driver(b.Driver), FSRoot: b.FSRoot, S3: b.S3}
}

// LogConfig sets the process log. TraceFile, when set, receives one JSON line
// per service operation.
type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	TraceFile string `yaml:"trace_file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// SyncConfig tunes the persistence retry queue.
type SyncConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// CategoryConfig declares per-category behaviour.
type CategoryConfig struct {
	Name            string `yaml:"name"`
	Prefix          string `yaml:"prefix"`
	QuantityTracked bool   `yaml:"quantity_tracked"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: StorageSQLite, SQLitePath: "gearcore.sqlite3", RedisPrefix: "gearcore"},
		Blob:    BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "gearcore-images"},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Driver: MetricsPrometheus, Addr: ":9090", Path: "/metrics"},
		Sync:    SyncConfig{MaxAttempts: 5, Backoff: 500 * time.Millisecond},
	}
}

// Load reads path over the defaults, applies the process environment and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from GEARCORE_* variables looked up through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"GEARCORE_STORAGE_DRIVER":   &c.Storage.Driver,
		"GEARCORE_SQLITE_PATH":      &c.Storage.SQLitePath,
		"GEARCORE_POSTGRES_DSN":     &c.Storage.PostgresDSN,
		"GEARCORE_REDIS_ADDR":       &c.Storage.RedisAddr,
		"GEARCORE_REDIS_PREFIX":     &c.Storage.RedisPrefix,
		"GEARCORE_BLOB_DRIVER":      &c.Blob.Driver,
		"GEARCORE_BLOB_FS_ROOT":     &c.Blob.FSRoot,
		"GEARCORE_BLOB_S3_BUCKET":   &c.Blob.S3.Bucket,
		"GEARCORE_BLOB_S3_REGION":   &c.Blob.S3.Region,
		"GEARCORE_BLOB_S3_ENDPOINT": &c.Blob.S3.Endpoint,
		"GEARCORE_LOG_LEVEL":        &c.Log.Level,
		"GEARCORE_LOG_FILE":         &c.Log.File,
		"GEARCORE_LOG_TRACE_FILE":   &c.Log.TraceFile,
		"GEARCORE_METRICS_DRIVER":   &c.Metrics.Driver,
		"GEARCORE_METRICS_ADDR":     &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := getenv("GEARCORE_BLOB_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEARCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v := getenv("GEARCORE_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEARCORE_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}
	if v := getenv("GEARCORE_SYNC_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GEARCORE_SYNC_MAX_ATTEMPTS: %w", err)
		}
		c.Sync.MaxAttempts = n
	}
	if v := getenv("GEARCORE_SYNC_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GEARCORE_SYNC_BACKOFF: %w", err)
		}
		c.Sync.Backoff = d
	}
	return nil
}

// Validate reports the first inconsistent setting. Driver names are matched
// case-insensitively, the way the backends open them.
func (c Config) Validate() error {
	switch normalize(c.Storage.Driver) {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path required for sqlite driver")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn required for postgres driver")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr required for redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch blob.Driver(normalize(c.Blob.Driver)) {
	case "":
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket required for s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch normalize(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch normalize(c.Metrics.Driver) {
	case "", MetricsPrometheus, MetricsExpvar:
	default:
		return fmt.Errorf("unknown metrics driver %q", c.Metrics.Driver)
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync.max_attempts must be at least 1")
	}
	if c.Sync.Backoff < 0 {
		return errors.New("sync.backoff must not be negative")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if name == "" {
			return errors.New("category name required")
		}
		if seen[name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[name] = true
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsDriver returns the normalized exporter name, prometheus when unset.
func (c Config) MetricsDriver() string {
	if d := normalize(c.Metrics.Driver); d != "" {
		return d
	}
	return MetricsPrometheus
}

// QuantityTracked returns the lower-cased names of quantity-tracked categories.
func (c Config) QuantityTracked() map[string]bool {
	out := make(map[string]bool)
	for _, cat := range c.Categories {
		if cat.QuantityTracked {
			out[strings.ToLower(strings.TrimSpace(cat.Name))] = true
		}
	}
	return out
}

// Prefixes maps lower-cased category names to their configured code prefix.
func (c Config) Prefixes() map[string]string {
	out := make(map[string]string)
	for _, cat := range c.Categories {
		if cat.Prefix != "" {
			out[strings.ToLower(strings.TrimSpace(cat.Name))] = strings.ToUpper(cat.Prefix)
		}
	}
	return out
}
