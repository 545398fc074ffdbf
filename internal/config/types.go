// Package config loads and validates wablast's configuration.
//
// JSON is the native format (strict: unknown fields are rejected); YAML is
// accepted by coercing it to JSON first. All durations are Go duration
// strings (e.g. "500ms", "10s", "1m").
package config

type Config struct {
	Session SessionConfig `json:"session"`
	Logging LoggingConfig `json:"logging"`
	Bulk    BulkConfig    `json:"bulk"`

	Notify    *NotifyConfig    `json:"notify,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Campaigns []CampaignConfig `json:"campaigns,omitempty"`
}

// SessionConfig selects the platform session implementation.
//
// Driver values:
//   - "dryrun" (default): no network, accepts every call
//
// The production client is injected by the embedder; this block only
// carries what the orchestrator itself needs to know.
type SessionConfig struct {
	Driver     string `json:"driver,omitempty"`
	UserServer string `json:"user_server,omitempty"` // default "s.whatsapp.net"
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // default "info"
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// BulkConfig carries run defaults and the session-wide rate ceiling.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 1
//   - batch_size: 10
//   - batch_cooldown: "30s"
//   - retry_max: 0 (no per-unit retry)
//   - call_timeout: "0s" (disabled)
type BulkConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	BatchCooldown string `json:"batch_cooldown,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	CallTimeout   string `json:"call_timeout,omitempty"`

	// Seed pins the random source for pacing and variation. 0 = wall clock.
	Seed int64 `json:"seed,omitempty"`
}

// NotifyConfig controls the Telegram ops-channel progress notifier.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 1
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./wablast.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// CampaignConfig is a named scheduled bulk send.
//
// Schedule accepts a cron expression ("*/5 * * * *", "@hourly"), a Go
// duration ("45m"), or HH:MM ("02:30"), optionally prefixed with "cron:"
// or "interval:".
type CampaignConfig struct {
	Name          string   `json:"name"`
	Schedule      string   `json:"schedule"`
	Message       string   `json:"message"`
	Recipients    []string `json:"recipients"`
	PerItemDelay  string   `json:"per_item_delay,omitempty"`
	BatchSize     int      `json:"batch_size,omitempty"`     // falls back to bulk.batch_size
	BatchCooldown string   `json:"batch_cooldown,omitempty"` // falls back to bulk.batch_cooldown
}
