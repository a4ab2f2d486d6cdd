package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// envOverrides are the environment knobs layered on top of the config file.
// Addresses keep the names the original deployment used (POSTS_API,
// ACCOUNTS_API); mail credentials stay out of the file entirely when set
// here.
type envOverrides struct {
	PostsAPI    string `env:"POSTS_API"`
	AccountsAPI string `env:"ACCOUNTS_API"`

	MailHost     string `env:"ANNOUNCER_MAIL_HOST"`
	MailPort     int    `env:"ANNOUNCER_MAIL_PORT"`
	MailUsername string `env:"ANNOUNCER_MAIL_USERNAME"`
	MailPassword string `env:"ANNOUNCER_MAIL_PASSWORD"`

	LinkBaseURL string `env:"ANNOUNCER_LINK_BASE_URL"`
	LogLevel    string `env:"ANNOUNCER_LOG_LEVEL"`
}

// applyEnv overlays environment values onto cfg. Only set variables override;
// everything else keeps its file value.
func applyEnv(ctx context.Context, cfg *Config) error {
	var ov envOverrides
	if err := envconfig.Process(ctx, &ov); err != nil {
		return fmt.Errorf("parsing env vars: %w", err)
	}

	if v := strings.TrimSpace(ov.PostsAPI); v != "" {
		cfg.Posts.BaseURL = v
	}
	if v := strings.TrimSpace(ov.AccountsAPI); v != "" {
		cfg.Accounts.BaseURL = v
	}
	if v := strings.TrimSpace(ov.MailHost); v != "" {
		cfg.Mail.Host = v
	}
	if ov.MailPort != 0 {
		cfg.Mail.Port = ov.MailPort
	}
	if v := strings.TrimSpace(ov.MailUsername); v != "" {
		cfg.Mail.Username = v
	}
	if ov.MailPassword != "" {
		cfg.Mail.Password = ov.MailPassword
	}
	if v := strings.TrimSpace(ov.LinkBaseURL); v != "" {
		cfg.Announce.LinkBaseURL = v
	}
	if v := strings.TrimSpace(ov.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
