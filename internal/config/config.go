// Package config is the root configuration for the embergate gateway,
// generalizing the teacher's internal/config package (on-disk json5 file +
// EMBERGATE_-prefixed env overlay, per SPEC_FULL.md §2.1) from agent-bridge
// settings to the chat-platform core's settings: the WebSocket gateway, the
// event broker, the storage backend, the presence store, push transports,
// and telemetry.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
)

// Config is the root configuration.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Broker    BrokerConfig    `json:"broker"`
	Storage   StorageConfig   `json:"storage"`
	Presence  PresenceConfig  `json:"presence"`
	Push      PushConfig      `json:"push,omitempty"`
	Voice     VoiceConfig     `json:"voice,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`

	mu sync.RWMutex
}

// GatewayConfig controls the WebSocket listener.
type GatewayConfig struct {
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`     // empty = allow all
	MaxMessageChars   int      `json:"max_message_chars,omitempty"`   // default 2000
	OwnerIDs          []string `json:"owner_ids,omitempty"`           // user IDs considered platform owners
	MemberChunkSize   int      `json:"member_chunk_size,omitempty"`   // §6.5 chunking size, default 1000
	DebounceIntervalMs int     `json:"debounce_interval_ms,omitempty"` // §4.6, default 5000
}

// BrokerConfig selects and configures the event broker backend (§4.2/§6.1).
type BrokerConfig struct {
	Backend       string `json:"backend"` // "memory" (default, dev) or "amqp"
	AMQPURL       string `json:"-"`       // from env EMBERGATE_BROKER_AMQP_URL only
	MemoryMaxBytes int64 `json:"memory_max_bytes,omitempty"` // default 5_000_000_000
}

// StorageConfig selects and configures the persistence backend (§6.7).
type StorageConfig struct {
	Backend     string `json:"backend"` // "memory" (default, dev/test), "postgres", or "sqlite"
	PostgresDSN string `json:"-"`       // from env EMBERGATE_POSTGRES_DSN only
	SQLitePath  string `json:"sqlite_path,omitempty"` // file path, e.g. "embergate.db", for the self-host backend
}

// PresenceConfig selects and configures the presence/voice-state store
// (§6.8).
type PresenceConfig struct {
	Backend  string `json:"backend"` // "memory" (default) or "redis"
	RedisURL string `json:"-"`       // from env EMBERGATE_REDIS_URL only
}

// VoiceConfig enables the VoiceSessionMachine's webhook endpoint (§4.8).
// The external media server authenticates each webhook with an HS256 JWT
// signed by APISecret, issuer-claimed as APIKey — the same scheme LiveKit
// webhooks use, verified here with golang-jwt rather than a LiveKit SDK.
type VoiceConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"-"` // from env EMBERGATE_VOICE_API_SECRET only
}

// PushConfig configures outbound push-notification transports (§4.7).
type PushConfig struct {
	APN     APNConfig     `json:"apn,omitempty"`
	FCM     FCMConfig     `json:"fcm,omitempty"`
	WebPush WebPushConfig `json:"webpush,omitempty"`
}

// APNConfig configures the Apple Push Notification transport.
type APNConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	KeyPath    string `json:"key_path,omitempty"`
	KeyID      string `json:"-"` // from env EMBERGATE_APN_KEY_ID only
	TeamID     string `json:"-"` // from env EMBERGATE_APN_TEAM_ID only
	Topic      string `json:"topic,omitempty"`
	Production bool   `json:"production,omitempty"`
}

// FCMConfig configures the Firebase Cloud Messaging transport.
type FCMConfig struct {
	Enabled                bool   `json:"enabled,omitempty"`
	ServiceAccountJSONPath string `json:"service_account_path,omitempty"`
}

// WebPushConfig configures the W3C Web Push transport.
type WebPushConfig struct {
	Enabled         bool   `json:"enabled,omitempty"`
	VAPIDPublicKey  string `json:"vapid_public_key,omitempty"`
	VAPIDPrivateKey string `json:"-"` // from env EMBERGATE_VAPID_PRIVATE_KEY only
	Subject         string `json:"subject,omitempty"` // mailto: or https: contact URI
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"` // default "embergate"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Broker = src.Broker
	c.Storage = src.Storage
	c.Presence = src.Presence
	c.Push = src.Push
	c.Voice = src.Voice
	c.Telemetry = src.Telemetry
}

// Hash returns a SHA-256 prefix of the config, for optimistic-concurrency
// checks on reload.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}
