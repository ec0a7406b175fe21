package config

// Config is the whole daemon configuration.
//
// The file may be JSON or YAML; YAML is converted to JSON and decoded with
// DisallowUnknownFields so typos are caught early. All durations are Go
// duration strings (e.g. "500ms", "30s", "5m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Monitor  MonitorConfig  `json:"monitor"`
	Push     PushConfig     `json:"push"`
	Fanout   FanoutConfig   `json:"fanout"`

	State       StateConfig       `json:"state"`
	Subscribers SubscribersConfig `json:"subscribers"`

	HTTP   HTTPConfig   `json:"http"`
	Mirror MirrorConfig `json:"mirror,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChannelID receives the public start/progress posts.
	ChannelID int64 `json:"channel_id"`
	// ChannelHandle is the public @handle mentioned in the welcome reply.
	ChannelHandle string `json:"channel_handle,omitempty"`
	// AdminUserID receives operational alerts (e.g. the page stopped parsing).
	AdminUserID int64 `json:"admin_user_id"`

	// PollTimeout is the long-poll timeout, a Go duration string.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// MonitorConfig controls the bonus-page poller.
type MonitorConfig struct {
	PageURL string `json:"page_url"`
	SiteURL string `json:"site_url,omitempty"`

	// PollInterval is a Go duration string; default "1m".
	PollInterval string `json:"poll_interval,omitempty"`
	// FetchTimeout bounds one page fetch; default "30s".
	FetchTimeout string `json:"fetch_timeout,omitempty"`

	// TotalCapacity is the full size of the bonus pool the progress bar is
	// rendered against.
	TotalCapacity int `json:"total_capacity,omitempty"`

	Cookies CookiesConfig `json:"cookies"`
}

// CookiesConfig carries the tracker session cookies sent with every fetch.
type CookiesConfig struct {
	BBData    string `json:"bb_data"`
	BBLastRel string `json:"bb_last_rel"`
}

// PushConfig configures Web Push (VAPID) delivery.
type PushConfig struct {
	Enabled bool `json:"enabled"`

	// Subscriber is the VAPID contact (mailto: or URL).
	Subscriber      string `json:"subscriber,omitempty"`
	VAPIDPublicKey  string `json:"vapid_public_key,omitempty"`
	VAPIDPrivateKey string `json:"vapid_private_key,omitempty"`

	// TTL in seconds for queued push messages at the push service.
	TTL int `json:"ttl,omitempty"`
}

// FanoutConfig controls batched delivery pacing.
//
// Defaults (batch_size=3, batch_interval="100ms") bound the outbound rate
// against the Telegram API limit while keeping fan-out latency sub-linear.
type FanoutConfig struct {
	BatchSize     int    `json:"batch_size,omitempty"`
	BatchInterval string `json:"batch_interval,omitempty"`
}

// StateConfig controls the persisted page-state record.
//
// Driver values:
//   - "file": JSON document, atomic replace (default)
//   - "sqlite": SQLite database file (optional build tag)
type StateConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`
}

type SubscribersConfig struct {
	// BotPath is the newline-delimited chat-ID list.
	BotPath string `json:"bot_path"`
	// PushPath is the JSON array of push subscriptions.
	PushPath string `json:"push_path"`
	// AuditPath, when set, receives a JSONL record per registration.
	AuditPath string `json:"audit_path,omitempty"`
}

// HTTPConfig controls the push-subscription API server.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":3000"
}

// MirrorConfig controls the optional frontend state artifact.
// Best-effort: mirror failures never fail a poll cycle.
type MirrorConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}
