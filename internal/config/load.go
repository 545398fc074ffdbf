package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"wablast/internal/wa"
)

// Load reads, decodes, defaults and validates a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(path, data)
}

// Parse decodes config bytes. The path selects JSON vs YAML handling.
func Parse(path string, data []byte) (Config, error) {
	jsonBytes, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return Config{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s config: %w", format, err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Session.Driver) == "" {
		c.Session.Driver = "dryrun"
	}
	if strings.TrimSpace(c.Session.UserServer) == "" {
		c.Session.UserServer = wa.DefaultUserServer
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}
	if c.Bulk.RatePerSec <= 0 {
		c.Bulk.RatePerSec = 1
	}
	if c.Bulk.BatchSize <= 0 {
		c.Bulk.BatchSize = 10
	}
	if strings.TrimSpace(c.Bulk.BatchCooldown) == "" {
		c.Bulk.BatchCooldown = "30s"
	}
	if c.Notify != nil && c.Notify.RatePerSec <= 0 {
		c.Notify.RatePerSec = 1
	}
	return c
}

// Validate checks everything that can be checked without I/O.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Session.Driver)) {
	case "dryrun":
	default:
		return fmt.Errorf("session.driver: unknown driver %q", c.Session.Driver)
	}

	if _, err := ParseDurationField("bulk.batch_cooldown", c.Bulk.BatchCooldown); err != nil {
		return err
	}
	if _, err := ParseDurationField("bulk.call_timeout", c.Bulk.CallTimeout); err != nil {
		return err
	}
	if c.Bulk.RetryMax < 0 {
		return fmt.Errorf("bulk.retry_max: must be >= 0")
	}

	if c.Notify != nil && c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			return fmt.Errorf("notify.token: required when notify is enabled")
		}
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id: required when notify is enabled")
		}
	}

	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for i, cc := range c.Campaigns {
		at := fmt.Sprintf("campaigns[%d]", i)
		name := strings.TrimSpace(cc.Name)
		if name == "" {
			return fmt.Errorf("%s.name: required", at)
		}
		if seen[name] {
			return fmt.Errorf("%s.name: duplicate campaign %q", at, name)
		}
		seen[name] = true
		if strings.TrimSpace(cc.Schedule) == "" {
			return fmt.Errorf("%s.schedule: required", at)
		}
		if strings.TrimSpace(cc.Message) == "" {
			return fmt.Errorf("%s.message: required", at)
		}
		if len(cc.Recipients) == 0 {
			return fmt.Errorf("%s.recipients: at least one required", at)
		}
		if _, err := ParseDurationField(at+".per_item_delay", cc.PerItemDelay); err != nil {
			return err
		}
		if _, err := ParseDurationField(at+".batch_cooldown", cc.BatchCooldown); err != nil {
			return err
		}
	}
	return nil
}
