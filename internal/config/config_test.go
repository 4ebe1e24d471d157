package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads; env treats "" as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DB_DRIVER", "DATABASE_URL", "MONGO_DATABASE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LAST_POSITION_TTL_SEC", "JWT_HS256_SECRET", "DAY_OFFSET",
		"LOG_LEVEL", "LOG_FORMAT", "READ_TIMEOUT_SEC", "WRITE_TIMEOUT_SEC",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("JWT_HS256_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("READ_TIMEOUT_SEC", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, "fieldtrack", cfg.Database.MongoDatabase)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "+05:30", cfg.DayOffset)
	assert.Empty(t, cfg.Redis.Addr)

	_, offset := time.Date(2024, 3, 1, 0, 0, 0, 0, cfg.DayLocation()).Zone()
	assert.Equal(t, 5*3600+30*60, offset)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
database:
  driver: sqlite
  url: file:track.db
redis:
  addr: localhost:6379
  last_position_ttl: 1h
auth:
  jwt_secret: from-file
day_offset: "+00:00"
http:
  write_timeout: 30s
`), 0o600))
	t.Setenv("JWT_HS256_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:track.db", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.LastPositionTTL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "cassandra")
	t.Setenv("DAY_OFFSET", "IST")

	_, err := Load("")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DB_DRIVER")
	assert.Contains(t, msg, "DATABASE_URL required")
	assert.Contains(t, msg, "JWT_HS256_SECRET required")
	assert.Contains(t, msg, "DAY_OFFSET")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
