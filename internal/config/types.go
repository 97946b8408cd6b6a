package config

// Config is the full YAML configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "20m").
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Verify    VerifyConfig    `yaml:"verify"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Groups    GroupsConfig    `yaml:"groups"`
	Media     MediaConfig     `yaml:"media"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TelegramConfig struct {
	Token       string  `yaml:"token"`
	AdminIDs    []int64 `yaml:"admin_ids"`
	PollTimeout string  `yaml:"poll_timeout,omitempty"`

	// PrimaryChannelID is the default source channel: its new posts are
	// ingested in real time, and legacy delivery links that carry no
	// chat id resolve against it.
	PrimaryChannelID int64 `yaml:"primary_channel_id"`

	// UpdateChannelURL is shown on the start menu.
	UpdateChannelURL string `yaml:"update_channel_url,omitempty"`

	// MTProto credentials for the history fetcher. The Bot API cannot
	// read channel history, so /index needs these.
	APIID       int    `yaml:"api_id,omitempty"`
	APIHash     string `yaml:"api_hash,omitempty"`
	SessionFile string `yaml:"session_file,omitempty"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout,omitempty"`
}

type SearchConfig struct {
	PageSize     int `yaml:"page_size,omitempty"`     // default 10
	FuzzyCutoff  int `yaml:"fuzzy_cutoff,omitempty"`  // default 80
	FuzzyWorkers int `yaml:"fuzzy_workers,omitempty"` // default 5
}

type SuggestConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
}

type VerifyConfig struct {
	// BaseURL is the public origin of the verification web gateway,
	// embedded in the links handed to users.
	BaseURL    string `yaml:"base_url"`
	ListenAddr string `yaml:"listen_addr,omitempty"` // default ":8080"
	TokenTTL   string `yaml:"token_ttl,omitempty"`   // default "1h"
}

type BroadcastConfig struct {
	Concurrency int `yaml:"concurrency,omitempty"`  // default 20
	RatePerSec  int `yaml:"rate_per_sec,omitempty"` // default 25
}

type GroupsConfig struct {
	AutoMessageText     string `yaml:"auto_message_text,omitempty"`
	AutoMessageInterval string `yaml:"auto_message_interval,omitempty"` // default "20m"
	AutoMessageTTL      string `yaml:"auto_message_ttl,omitempty"`      // default "5m"
}

type MediaConfig struct {
	StartPic string `yaml:"start_pic,omitempty"`
}

type LoggingConfig struct {
	Level   string            `yaml:"level,omitempty"`
	Console *bool             `yaml:"console,omitempty"` // nil means true
	File    LoggingFileConfig `yaml:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

func (c *LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}
