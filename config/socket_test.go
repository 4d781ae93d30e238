package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_PORT", "8080")
	t.Setenv("CORS_HOSTS", "http://localhost:3000, https://app.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSHosts)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, 30, cfg.PingInterval)
	assert.Equal(t, 10, cfg.WriteTimeout)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
	assert.Equal(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 60.0, cfg.EventRate)
	assert.Equal(t, 120, cfg.EventBurst)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "redis", cfg.BridgeDriver)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("CORS_HOSTS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "CORS_HOSTS")
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "5")
	t.Setenv("PING_INTERVAL", "0")
	t.Setenv("EVENT_RATE", "2.5")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("BRIDGE_DRIVER", "NATS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxConnections)
	assert.Equal(t, 0, cfg.PingInterval)
	assert.Equal(t, 2.5, cfg.EventRate)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "nats", cfg.BridgeDriver)
	assert.Zero(t, cfg.PongWait())
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "lots")
	t.Setenv("SEND_BUFFER", "-3")
	t.Setenv("EVENT_RATE", "fast")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 60.0, cfg.EventRate)
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.PingPeriod())
	assert.Equal(t, 60*time.Second, cfg.PongWait())
	assert.Equal(t, 10*time.Second, cfg.WriteWait())
}

func TestAddr(t *testing.T) {
	cfg := &SocketConfig{Port: "3000"}
	assert.Equal(t, ":3000", cfg.Addr())
	cfg.Port = "127.0.0.1:3000"
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
}

func TestOriginAllowed(t *testing.T) {
	cfg := &SocketConfig{CORSHosts: []string{"http://localhost:3000"}}
	assert.True(t, cfg.OriginAllowed(""))
	assert.True(t, cfg.OriginAllowed("http://localhost:3000"))
	assert.False(t, cfg.OriginAllowed("http://evil.example"))

	cfg.CORSHosts = []string{"*"}
	assert.True(t, cfg.OriginAllowed("http://evil.example"))
}

func TestLoadEnvFile(t *testing.T) {
	for _, k := range []string{"APP_PORT", "CORS_HOSTS", "SEND_BUFFER"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("BRIDGE_DRIVER", "none")

	path := filepath.Join(t.TempDir(), ".env")
	contents := "APP_PORT=9090\nCORS_HOSTS=http://localhost:5173\nSEND_BUFFER=32\nBRIDGE_DRIVER=redis\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSHosts)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, "none", cfg.BridgeDriver, "existing variables win over the file")
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}
