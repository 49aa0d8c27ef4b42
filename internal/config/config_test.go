package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
engine:
  defaultTimeLimit: 45s
  freeTextTopN: 10
store:
  driver: redis
redis:
  addrs: ["localhost:6379"]
  prefix: lq
quiz:
  file: config/quizzes.yaml
`)

	c := Default()
	require.NoError(t, Load(path, &c))

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, 45*time.Second, c.Engine.DefaultTimeLimit)
	assert.Equal(t, 10, c.Engine.FreeTextTopN)
	assert.Equal(t, "redis", c.Store.Driver)
	assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
	assert.Equal(t, "lq", c.Redis.Prefix)
	assert.Equal(t, "config/quizzes.yaml", c.Quiz.File)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10, c.Engine.JoinCodeAttempts)
	assert.Equal(t, 24*time.Hour, c.Redis.Retention)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("ENGINE_DEFAULTTIMELIMIT", "45s")
	t.Setenv("REDIS_ADDRS", "r1:6379,r2:6379")

	c := Default()
	require.NoError(t, Load(path, &c))

	assert.Equal(t, 9100, c.Server.Port)
	// Keys absent from the file are still overridable.
	assert.Equal(t, "sqlite", c.Store.Driver)
	assert.Equal(t, 45*time.Second, c.Engine.DefaultTimeLimit)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, c.Redis.Addrs)
	assert.Equal(t, "quiz", c.Redis.Prefix)
}

func TestLoadMissingFile(t *testing.T) {
	c := Default()
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	assert.Error(t, err)
}
