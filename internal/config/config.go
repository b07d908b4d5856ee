// Package config loads server settings from a YAML file with FORMLY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/Formly/internal/utils"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	JWTSecret   string   `yaml:"jwt_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
	CORSOrigins []string `yaml:"cors_origins"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"` // sqlite or mongo
	SQLitePath    string `yaml:"sqlite_path"`
	MigrationsDir string `yaml:"migrations_dir"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// RedisConfig: an empty Addr disables Redis; drafts then live in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Duration reads "90s", "24h" style strings.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			TokenTTL:        Duration{30 * 24 * time.Hour},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    "./data/formly.db",
			MongoDatabase: "formly",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty and present), then applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	cfg.Server.Addr = utils.SafeEnv("FORMLY_ADDR", cfg.Server.Addr)
	cfg.Server.JWTSecret = utils.SafeEnv("FORMLY_JWT_SECRET", cfg.Server.JWTSecret)
	cfg.Server.CORSOrigins = utils.EnvList("FORMLY_CORS_ORIGINS", cfg.Server.CORSOrigins)
	ttl, err := utils.EnvDuration("FORMLY_TOKEN_TTL", cfg.Server.TokenTTL.Duration)
	if err != nil {
		return err
	}
	cfg.Server.TokenTTL = Duration{ttl}
	cfg.Store.Driver = utils.SafeEnv("FORMLY_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.SQLitePath = utils.SafeEnv("FORMLY_SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.MigrationsDir = utils.SafeEnv("FORMLY_MIGRATIONS_DIR", cfg.Store.MigrationsDir)
	cfg.Store.MongoURI = utils.SafeEnv("FORMLY_MONGO_URI", cfg.Store.MongoURI)
	cfg.Store.MongoDatabase = utils.SafeEnv("FORMLY_MONGO_DATABASE", cfg.Store.MongoDatabase)
	cfg.Redis.Addr = strings.TrimPrefix(utils.SafeEnv("FORMLY_REDIS_ADDR", cfg.Redis.Addr), "redis://")
	cfg.Redis.Password = utils.SafeEnv("FORMLY_REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = utils.EnvInt("FORMLY_REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	cfg.Log.Level = utils.SafeEnv("FORMLY_LOG_LEVEL", cfg.Log.Level)
	return nil
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or mongo, got %q", c.Store.Driver)
	}
	if c.Server.TokenTTL.Duration <= 0 {
		return errors.New("server.token_ttl must be positive")
	}
	return nil
}
