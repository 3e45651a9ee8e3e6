// Package config loads relq settings from a config file, the environment
// and dotenv files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/syurodev/system/runtime/client"
)

var AppFs = afero.NewOsFs()

const (
	configName = ".relq"
	envPrefix  = "RELQ"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	Debug        bool
	FieldMapPath string
	Database     Database
	Cache        Cache
	// File is the config file that was read, if any.
	File string
}

// Database configures the connection pool and executor.
type Database struct {
	Provider            string
	URL                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	ConnectTimeout      time.Duration
	QueryTimeout        time.Duration
	HealthCheckInterval time.Duration
	StatementCache      bool
	SkipVersionCheck    bool
}

// Cache configures the row cache.
type Cache struct {
	Backend  string
	RedisURL string
	TTL      time.Duration
	Size     int
}

// FlagKeys maps command line flag names to config keys for Load.
var FlagKeys = map[string]string{
	"provider": "database.provider",
	"url":      "database.url",
	"debug":    "debug",
}

func setDefaults(v *viper.Viper) {
	pool := client.DefaultPoolConfig()
	v.SetDefault("debug", false)
	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.max_open_conns", pool.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", pool.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", pool.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", pool.ConnMaxIdleTime)
	v.SetDefault("database.connect_timeout", pool.ConnectTimeout)
	v.SetDefault("database.query_timeout", 30*time.Second)
	v.SetDefault("database.health_check_interval", pool.HealthCheckInterval)
	v.SetDefault("database.statement_cache", false)
	v.SetDefault("database.skip_version_check", false)
	v.SetDefault("cache.backend", CacheNone)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("fieldmap.path", "")
}

// LoadConfig loads configuration from various sources. An explicit path
// must exist; otherwise .relq.yaml is searched in the working directory,
// $HOME and $HOME/.config/relq. Flags named in FlagKeys override the file
// when they were set.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "relq"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		Debug:        v.GetBool("debug"),
		FieldMapPath: v.GetString("fieldmap.path"),
		File:         v.ConfigFileUsed(),
		Database: Database{
			Provider:            v.GetString("database.provider"),
			URL:                 v.GetString("database.url"),
			MaxOpenConns:        v.GetInt("database.max_open_conns"),
			MaxIdleConns:        v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:     v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime:     v.GetDuration("database.conn_max_idle_time"),
			ConnectTimeout:      v.GetDuration("database.connect_timeout"),
			QueryTimeout:        v.GetDuration("database.query_timeout"),
			HealthCheckInterval: v.GetDuration("database.health_check_interval"),
			StatementCache:      v.GetBool("database.statement_cache"),
			SkipVersionCheck:    v.GetBool("database.skip_version_check"),
		},
		Cache: Cache{
			Backend:  strings.ToLower(v.GetString("cache.backend")),
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
			Size:     v.GetInt("cache.size"),
		},
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Cache.RedisURL == "" {
		cfg.Cache.RedisURL = os.Getenv("REDIS_URL")
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("config: cache.redis_url is required for the redis backend")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("config: connection limits must not be negative")
	}
	return nil
}

// ClientConfig converts the database section for client.New.
func (c *Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.Database.Provider, c.Database.URL)
	cc.Pool = client.PoolConfig{
		MaxOpenConns:        c.Database.MaxOpenConns,
		MaxIdleConns:        c.Database.MaxIdleConns,
		ConnMaxLifetime:     c.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     c.Database.ConnMaxIdleTime,
		ConnectTimeout:      c.Database.ConnectTimeout,
		HealthCheckInterval: c.Database.HealthCheckInterval,
	}
	cc.QueryTimeout = c.Database.QueryTimeout
	cc.StatementCache = c.Database.StatementCache
	cc.SkipVersionCheck = c.Database.SkipVersionCheck
	return cc
}

// SaveConfig writes the persistent settings of cfg to path as YAML. An
// empty path writes $HOME/.config/relq/.relq.yaml.
func SaveConfig(cfg *Config, path string) (string, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".config", "relq", configName+".yaml")
	}
	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.Set("debug", cfg.Debug)
	v.Set("fieldmap.path", cfg.FieldMapPath)
	v.Set("database.provider", cfg.Database.Provider)
	v.Set("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.Set("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.Set("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime.String())
	v.Set("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime.String())
	v.Set("database.connect_timeout", cfg.Database.ConnectTimeout.String())
	v.Set("database.query_timeout", cfg.Database.QueryTimeout.String())
	v.Set("database.health_check_interval", cfg.Database.HealthCheckInterval.String())
	v.Set("cache.backend", cfg.Cache.Backend)
	v.Set("cache.ttl", cfg.Cache.TTL.String())
	v.Set("cache.size", cfg.Cache.Size)
	return path, v.WriteConfigAs(path)
}

// loadDotEnv applies .env without overriding the environment, then
// .env.local with override.
func loadDotEnv() error {
	for _, f := range []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env.local", true},
	} {
		if _, err := AppFs.Stat(f.name); err != nil {
			continue
		}
		file, err := AppFs.Open(f.name)
		if err != nil {
			return err
		}
		values, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		for k, val := range values {
			if _, set := os.LookupEnv(k); set && !f.override {
				continue
			}
			os.Setenv(k, val)
		}
	}
	return nil
}
