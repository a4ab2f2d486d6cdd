package config

// Config is the full daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets and addresses can be overridden from the environment; see env.go.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Posts    APIConfig      `json:"posts_api"`
	Accounts APIConfig      `json:"accounts_api"`
	Mail     MailConfig     `json:"mail"`
	Announce AnnounceConfig `json:"announce"`
	Journal  *JournalConfig `json:"journal,omitempty"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // DEBUG|INFO|WARN|ERROR
	Console *bool      `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// APIConfig points at one of the two upstream HTTP APIs.
type APIConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // default "3s"
}

// MailConfig configures the outbound SMTP session.
type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"` // default: username

	Timeout string `json:"timeout,omitempty"` // per protocol stage, default "10s"

	// DisableStartTLS skips the TLS upgrade even when offered. Local testing only.
	DisableStartTLS    bool `json:"disable_starttls,omitempty"`
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"` // 0 = unlimited
}

// AnnounceConfig controls the reconciliation loop.
type AnnounceConfig struct {
	// Schedule is a Go duration ("5s") or cron expression ("*/5 * * * *").
	Schedule string `json:"schedule,omitempty"`

	// LinkBaseURL is prepended to a post id to build the review link.
	LinkBaseURL string `json:"link_base_url,omitempty"`
}

// JournalConfig controls the optional tick journal.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./announcerd_journal.jsonl" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	MaxRecords  int    `json:"max_records,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

func (c *Config) ConsoleLogging() bool {
	if c.Logging.Console == nil {
		return true
	}
	return *c.Logging.Console
}
