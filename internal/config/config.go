package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fieldtrack/internal/tracking"
)

// Config is read from an optional YAML file, then overridden by environment
// variables (a .env file is loaded into the environment by main).
type Config struct {
	Port int `yaml:"port"` // HTTP listen port

	Database struct {
		Driver        string `yaml:"driver"`         // mongo, postgres or sqlite
		URL           string `yaml:"url"`            // connection string / DSN
		MongoDatabase string `yaml:"mongo_database"` // database name when driver is mongo
	} `yaml:"database"`

	Redis struct {
		Addr            string        `yaml:"addr"` // empty disables rate limiting and live positions
		Password        string        `yaml:"password"`
		DB              int           `yaml:"db"`
		RateLimitRPS    int           `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
		LastPositionTTL time.Duration `yaml:"last_position_ttl"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"` // HS256 key
	} `yaml:"auth"`

	DayOffset string `yaml:"day_offset"` // fixed offset of the civil day, e.g. +05:30

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	HTTP struct {
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"http"`
}

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func defaults() Config {
	var c Config
	c.Port = 8080
	c.Database.Driver = DriverMongo
	c.Database.MongoDatabase = "fieldtrack"
	c.Redis.RateLimitRPS = 2
	c.Redis.RateLimitBurst = 4
	c.Redis.LastPositionTTL = 48 * time.Hour
	c.DayOffset = tracking.DefaultDayOffset
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.HTTP.ReadTimeout = 10 * time.Second
	c.HTTP.WriteTimeout = 15 * time.Second
	return c
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.Database.Driver = env("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = env("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MongoDatabase = env("MONGO_DATABASE", cfg.Database.MongoDatabase)
	cfg.Redis.Addr = env("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = env("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.RateLimitRPS = envInt("RATE_LIMIT_RPS", cfg.Redis.RateLimitRPS)
	cfg.Redis.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.Redis.RateLimitBurst)
	cfg.Redis.LastPositionTTL = envSeconds("LAST_POSITION_TTL_SEC", cfg.Redis.LastPositionTTL)
	cfg.Auth.JWTSecret = env("JWT_HS256_SECRET", cfg.Auth.JWTSecret)
	cfg.DayOffset = env("DAY_OFFSET", cfg.DayOffset)
	cfg.Log.Level = env("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = env("LOG_FORMAT", cfg.Log.Format)
	cfg.HTTP.ReadTimeout = envSeconds("READ_TIMEOUT_SEC", cfg.HTTP.ReadTimeout)
	cfg.HTTP.WriteTimeout = envSeconds("WRITE_TIMEOUT_SEC", cfg.HTTP.WriteTimeout)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMongo, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want mongo, postgres or sqlite", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_HS256_SECRET required"))
	}
	if _, err := tracking.ParseOffset(c.DayOffset); err != nil {
		errs = append(errs, fmt.Errorf("DAY_OFFSET: %w", err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

// DayLocation is the parsed DayOffset. Call after Validate.
func (c Config) DayLocation() *time.Location {
	loc, err := tracking.ParseOffset(c.DayOffset)
	if err != nil {
		return time.UTC
	}
	return loc
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
