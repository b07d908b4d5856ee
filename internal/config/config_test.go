package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.Server.TokenTTL.Duration)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formly.yaml")
	writeFile(t, path, `
server:
  addr: ":9000"
  token_ttl: 2h
  cors_origins: ["https://a.example"]
store:
  driver: mongo
  mongo_uri: mongodb://db:27017
redis:
  addr: cache:6379
log:
  level: debug
`)
	t.Setenv("FORMLY_JWT_SECRET", "s3cret")
	t.Setenv("FORMLY_REDIS_ADDR", "redis://other:6379")
	t.Setenv("FORMLY_CORS_ORIGINS", "https://b.example, https://c.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Server.TokenTTL.Duration)
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "other:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"driver":   "store:\n  driver: postgres\n",
		"duration": "server:\n  token_ttl: soon\n",
		"mongo":    "store:\n  driver: mongo\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		writeFile(t, path, body)
		_, err := Load(path)
		assert.Error(t, err, name)
	}
	t.Setenv("FORMLY_REDIS_DB", "zero")
	_, err := Load("")
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "formly.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, zaptest.NewLogger(t), func(c Config) { reloaded <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "log:\n  level: debug\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	cancel()
	require.NoError(t, <-done)
}
