package bridge

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Drivers accepted by BRIDGE_DRIVER.
const (
	DriverRedis = "redis"
	DriverNATS  = "nats"
	DriverNone  = "none"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "presence:ws:"
	Queue    int    // Outbound events buffered before dropping, default 1024
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "presence:ws:",
		Queue:  1024,
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_WS_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}

// NATSConfig holds connection settings for the NATS bridge.
type NATSConfig struct {
	URL     string // server URLs, comma separated, default nats.DefaultURL
	Subject string // subject carrying room events, default "presence.ws.broadcast"
	Name    string // connection name reported to the server
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() *NATSConfig {
	return &NATSConfig{
		URL:     "nats://127.0.0.1:4222",
		Subject: "presence.ws.broadcast",
		Name:    "presence",
	}
}

// NATSConfigFromEnv loads NATS configuration from environment variables.
func NATSConfigFromEnv() *NATSConfig {
	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	if subj := os.Getenv("NATS_SUBJECT"); subj != "" {
		cfg.Subject = subj
	}
	if name := os.Getenv("NATS_NAME"); name != "" {
		cfg.Name = name
	}
	return cfg
}

// New builds the bridge selected by driver. It returns nil for DriverNone.
// The bridge is not started.
func New(driver string, hub BroadcastTarget, logger zerolog.Logger) Bridge {
	switch strings.ToLower(driver) {
	case DriverRedis:
		return NewRedisBridge(RedisConfigFromEnv(), hub, logger)
	case DriverNATS:
		return NewNATSBridge(NATSConfigFromEnv(), hub, logger)
	case DriverNone, "":
		return nil
	}
	logger.Warn().Str("driver", driver).Msg("unknown bridge driver, running standalone")
	return nil
}
