package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SocketConfig holds WebSocket server configuration.
// It is read from the environment once at startup and treated as immutable.
type SocketConfig struct {
	Port      string   `json:"port"`
	CORSHosts []string `json:"cors_hosts"`

	MaxConnections  int `json:"max_connections"`
	PingInterval    int `json:"ping_interval_seconds"`
	WriteTimeout    int `json:"write_timeout_seconds"`
	ReadBufferSize  int `json:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size"`
	MaxMessageSize  int `json:"max_message_size"`
	SendBuffer      int `json:"send_buffer"`

	// Per-connection inbound events per second and burst. EventRate 0 disables limiting.
	EventRate  float64 `json:"event_rate"`
	EventBurst int     `json:"event_burst"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	BridgeDriver string `json:"bridge_driver"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  4096,
		SendBuffer:      256,
		EventRate:       60,
		EventBurst:      120,
		LogLevel:        "info",
		LogFormat:       "json",
		BridgeDriver:    "redis",
	}
}

// LoadEnvFile merges variables from .env files (default ".env") into the
// process environment. Variables already set are not overridden. A missing
// file is reported as an error for the caller to log; it is not fatal.
func LoadEnvFile(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads the configuration from environment variables.
// It returns an error when a required variable is unset.
func Load() (*SocketConfig, error) {
	cfg := DefaultConfig()

	var missing []string

	cfg.Port = os.Getenv("APP_PORT")
	if cfg.Port == "" {
		missing = append(missing, "APP_PORT")
	}

	cfg.CORSHosts = splitList(os.Getenv("CORS_HOSTS"))
	if len(cfg.CORSHosts) == 0 {
		missing = append(missing, "CORS_HOSTS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.MaxConnections = getEnvInt("MAX_CONNECTIONS", cfg.MaxConnections)
	cfg.PingInterval = getEnvInt("PING_INTERVAL", cfg.PingInterval)
	cfg.WriteTimeout = getEnvInt("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ReadBufferSize = getEnvInt("READ_BUFFER", cfg.ReadBufferSize)
	cfg.WriteBufferSize = getEnvInt("WRITE_BUFFER", cfg.WriteBufferSize)
	cfg.MaxMessageSize = getEnvInt("MAX_MESSAGE_SIZE", cfg.MaxMessageSize)
	cfg.SendBuffer = getEnvInt("SEND_BUFFER", cfg.SendBuffer)
	cfg.EventRate = getEnvFloat("EVENT_RATE", cfg.EventRate)
	cfg.EventBurst = getEnvInt("EVENT_BURST", cfg.EventBurst)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("LOG_FORMAT", cfg.LogFormat)
	cfg.BridgeDriver = strings.ToLower(getEnvString("BRIDGE_DRIVER", cfg.BridgeDriver))

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *SocketConfig) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// PingPeriod is the interval between server pings. Zero disables pings.
func (c *SocketConfig) PingPeriod() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// PongWait is how long a connection may stay silent before it is closed.
func (c *SocketConfig) PongWait() time.Duration {
	if c.PingInterval <= 0 {
		return 0
	}
	return c.PingPeriod() * 2
}

// WriteWait bounds a single frame write.
func (c *SocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// OriginAllowed reports whether a browser Origin may open a WebSocket.
// An empty origin (non-browser client) is always allowed.
func (c *SocketConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, h := range c.CORSHosts {
		if h == "*" || strings.EqualFold(h, origin) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}
