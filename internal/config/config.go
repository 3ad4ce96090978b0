// Package config loads soulbound settings from a YAML file, SOULBOUND_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

const (
	configFileName = "soulbound"
	configFileType = "yaml"
	envPrefix      = "SOULBOUND"
)

// Config keys.
const (
	KeyBackend        = "backend"
	KeySQLitePath     = "sqlite.path"
	KeyPostgresDSN    = "postgres.dsn"
	KeyHash           = "hash"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyMetricsEnabled = "metrics.enabled"
	KeyS3Bucket       = "export.s3.bucket"
	KeyS3Region       = "export.s3.region"
	KeyS3Endpoint     = "export.s3.endpoint"
	KeyS3PathStyle    = "export.s3.path_style"
)

const (
	defaultSQLitePath = "soulbound.db"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
)

// Config is the decoded configuration.
type Config struct {
	Backend  string         `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Hash     string         `mapstructure:"hash"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Export   ExportConfig   `mapstructure:"export"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ExportConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

// S3Config locates the bucket snapshots are exported to. Endpoint and
// PathStyle target S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// New returns a viper instance with defaults and environment overrides
// registered. Callers may bind flags on it before calling Read.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBackend, string(kv.BackendSQLite))
	v.SetDefault(KeySQLitePath, defaultSQLitePath)
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyHash, ir.HashBlake2b256)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyLogFormat, defaultLogFormat)
	v.SetDefault(KeyMetricsEnabled, false)
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Region, "")
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyS3PathStyle, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file into v. An explicit path must exist. With an
// empty path, soulbound.yaml is looked up in the working directory and the
// user config directory, and a missing file is not an error.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "soulbound"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New, Read and Decode in one call.
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks enumerated settings and backend requirements.
func (c *Config) Validate() error {
	switch kv.Name(c.Backend) {
	case kv.BackendMemory:
	case kv.BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("config: %s is required for the sqlite backend", KeySQLitePath)
		}
	case kv.BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: %s is required for the postgres backend", KeyPostgresDSN)
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want memory, sqlite or postgres)", c.Backend)
	}
	if _, err := ir.NewHasher(c.Hash); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// LogLevel parses Log.Level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	return level, nil
}

// Hasher returns the configured record id hasher.
func (c *Config) Hasher() (ir.Hasher, error) {
	return ir.NewHasher(c.Hash)
}
