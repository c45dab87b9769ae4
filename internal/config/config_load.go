package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:               "0.0.0.0",
			Port:               14702,
			MaxMessageChars:    2000,
			MemberChunkSize:    1000,
			DebounceIntervalMs: 5000,
		},
		Broker: BrokerConfig{
			Backend:        "memory",
			MemoryMaxBytes: 5_000_000_000,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Presence: PresenceConfig{
			Backend: "memory",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "embergate",
		},
	}
}

// Load reads config from a json5 file, then overlays env vars. A missing
// file is not an error — Default with env overrides is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays EMBERGATE_-prefixed env vars onto the config.
// Env vars take precedence over file values, and secrets (DSNs, keys) are
// read from env only, never persisted to the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("EMBERGATE_HOST", &c.Gateway.Host)
	if v := os.Getenv("EMBERGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("EMBERGATE_OWNER_IDS"); v != "" {
		c.Gateway.OwnerIDs = strings.Split(v, ",")
	}
	if v := os.Getenv("EMBERGATE_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	envStr("EMBERGATE_BROKER_BACKEND", &c.Broker.Backend)
	envStr("EMBERGATE_BROKER_AMQP_URL", &c.Broker.AMQPURL)

	envStr("EMBERGATE_STORAGE_BACKEND", &c.Storage.Backend)
	envStr("EMBERGATE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	envStr("EMBERGATE_SQLITE_PATH", &c.Storage.SQLitePath)

	envStr("EMBERGATE_PRESENCE_BACKEND", &c.Presence.Backend)
	envStr("EMBERGATE_REDIS_URL", &c.Presence.RedisURL)

	if v := os.Getenv("EMBERGATE_VOICE_ENABLED"); v != "" {
		c.Voice.Enabled = v == "true" || v == "1"
	}
	envStr("EMBERGATE_VOICE_API_KEY", &c.Voice.APIKey)
	envStr("EMBERGATE_VOICE_API_SECRET", &c.Voice.APISecret)

	envStr("EMBERGATE_APN_KEY_ID", &c.Push.APN.KeyID)
	envStr("EMBERGATE_APN_TEAM_ID", &c.Push.APN.TeamID)
	envStr("EMBERGATE_VAPID_PRIVATE_KEY", &c.Push.WebPush.VAPIDPrivateKey)

	envStr("EMBERGATE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("EMBERGATE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("EMBERGATE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("EMBERGATE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EMBERGATE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call this after a file reload to restore runtime secrets.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}
