package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parse reads and strictly decodes the config file at path.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses and validates in one step. Validation problems are aggregated
// into a single error so a broken config fails fast with the full list.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every required field and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error
	miss := func(field string) {
		errs = append(errs, fmt.Errorf("%s is required", field))
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		miss("telegram.token")
	}
	if c.Telegram.ChannelID == 0 {
		miss("telegram.channel_id")
	}
	if c.Telegram.AdminUserID == 0 {
		miss("telegram.admin_user_id")
	}
	if strings.TrimSpace(c.Monitor.PageURL) == "" {
		miss("monitor.page_url")
	}
	if strings.TrimSpace(c.Monitor.Cookies.BBData) == "" {
		miss("monitor.cookies.bb_data")
	}
	if strings.TrimSpace(c.Monitor.Cookies.BBLastRel) == "" {
		miss("monitor.cookies.bb_last_rel")
	}
	if strings.TrimSpace(c.State.Path) == "" && stateDriver(c.State.Driver) != "none" {
		miss("state.path")
	}
	if strings.TrimSpace(c.Subscribers.BotPath) == "" {
		miss("subscribers.bot_path")
	}
	if strings.TrimSpace(c.Subscribers.PushPath) == "" {
		miss("subscribers.push_path")
	}
	if c.Push.Enabled {
		if strings.TrimSpace(c.Push.VAPIDPublicKey) == "" {
			miss("push.vapid_public_key")
		}
		if strings.TrimSpace(c.Push.VAPIDPrivateKey) == "" {
			miss("push.vapid_private_key")
		}
		if strings.TrimSpace(c.Push.Subscriber) == "" {
			miss("push.subscriber")
		}
	}
	if c.Mirror.Enabled && strings.TrimSpace(c.Mirror.Path) == "" {
		miss("mirror.path")
	}
	if c.Fanout.BatchSize < 0 {
		errs = append(errs, errors.New("fanout.batch_size must be >= 0"))
	}

	// Duration fields must at least parse; component defaults apply later.
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"monitor.poll_interval", c.Monitor.PollInterval},
		{"monitor.fetch_timeout", c.Monitor.FetchTimeout},
		{"fanout.batch_interval", c.Fanout.BatchInterval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

func stateDriver(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "file"
	}
	return s
}
