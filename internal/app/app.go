// Package app wires configuration, logging and the announcer services into
// one runnable daemon.
package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"

	"announcerd/internal/announcer"
	"announcerd/internal/config"
	"announcerd/internal/gateway"
	"announcerd/internal/journal"
	"announcerd/internal/mailer"
	"announcerd/internal/observability/pprof"
	"announcerd/internal/runtime/supervisor"

	logx "announcerd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	// lastCfg is the config currently in effect, kept here because the
	// Manager commits a reload before publishing it.
	lastCfg *config.Config

	log  logx.Logger
	logs *logx.Service
	jnl  journal.Store

	posts    *gateway.Posts
	accounts *gateway.Accounts
	mail     *mailer.Broadcaster
	ann      *announcer.Service
	pprof    *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	// Journal (optional)
	var jnl journal.Store
	if jc, enabled, err := mapJournalConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := journal.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		jnl = st
		log.Info("journal enabled", logx.String("driver", jc.Driver))
	}

	postsTimeout, err := config.ParseDurationOrDefault("posts_api.timeout", cfg.Posts.Timeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	accountsTimeout, err := config.ParseDurationOrDefault("accounts_api.timeout", cfg.Accounts.Timeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	mailTimeout, err := config.ParseDurationOrDefault("mail.timeout", cfg.Mail.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	posts := gateway.NewPosts(gateway.PostsConfig{
		BaseURL: cfg.Posts.BaseURL,
		Timeout: postsTimeout,
	}, log.With(logx.String("comp", "posts")))

	accounts := gateway.NewAccounts(gateway.AccountsConfig{
		BaseURL: cfg.Accounts.BaseURL,
		Timeout: accountsTimeout,
	}, log.With(logx.String("comp", "accounts")))

	mail := mailer.New(mailer.Config{
		Host:               cfg.Mail.Host,
		Port:               cfg.Mail.Port,
		Username:           cfg.Mail.Username,
		Password:           cfg.Mail.Password,
		From:               cfg.Mail.From,
		Timeout:            mailTimeout,
		DisableStartTLS:    cfg.Mail.DisableStartTLS,
		InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
		RatePerSec:         cfg.Mail.RatePerSec,
	}, log.With(logx.String("comp", "mailer")))

	ann, err := announcer.New(mapAnnounce(cfg), posts, accounts, mail, jnl,
		log.With(logx.String("comp", "announcer")))
	if err != nil {
		return nil, err
	}

	pprofSvc := pprof.New(pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		lastCfg:  cfg,
		log:      log,
		logs:     logSvc,
		jnl:      jnl,
		posts:    posts,
		accounts: accounts,
		mail:     mail,
		ann:      ann,
		pprof:    pprofSvc,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if a.jnl != nil {
		a.logLastTick(ctx)
	}

	a.sup.Go("announcer.run", a.ann.Run)

	if a.pprof.Enabled() {
		a.sup.Go("pprof.serve", a.pprof.Run)
	}

	a.sup.Go0("config.watch", func(c context.Context) {
		_ = a.cfgm.Watch(c)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	// systemd integration is a no-op outside a systemd unit.
	if ok, err := sdaemon.SdNotify(false, sdaemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	if interval, err := sdaemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyWatchdog)
				}
			}
		})
	}

	a.log.Info("announcerd started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping)

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.jnl != nil {
		_ = a.jnl.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) logLastTick(ctx context.Context) {
	recs, err := a.jnl.RecentTicks(ctx, 1)
	if err != nil || len(recs) == 0 {
		return
	}
	last := recs[len(recs)-1]
	a.log.Info("journal resume",
		logx.Time("last_tick", last.At),
		logx.Int("eligible", last.Eligible),
		logx.Int("mark_failed", last.MarkFailed))
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(newCfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	prev := a.lastCfg
	a.lastCfg = cfg

	a.logs.Apply(mapLogging(cfg))

	if err := a.ann.Apply(mapAnnounce(cfg)); err != nil {
		a.log.Warn("announce config apply failed", logx.Err(err))
	} else {
		a.log.Info("config applied",
			logx.String("schedule", strings.TrimSpace(cfg.Announce.Schedule)))
	}

	// Gateway, mail, journal and pprof changes need fresh connections.
	if prev != nil {
		if !reflect.DeepEqual(prev.Posts, cfg.Posts) ||
			!reflect.DeepEqual(prev.Accounts, cfg.Accounts) ||
			!reflect.DeepEqual(prev.Mail, cfg.Mail) {
			a.log.Warn("gateway/mail config changed; restart required for changes to take effect")
		}
		if !reflect.DeepEqual(prev.Journal, cfg.Journal) {
			a.log.Warn("journal config changed; restart required for changes to take effect")
		}
		if !reflect.DeepEqual(prev.Pprof, cfg.Pprof) {
			a.log.Warn("pprof config changed; restart required for changes to take effect")
		}
	}
}

// ---- config mapping / validation ----

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapAnnounce(cfg *config.Config) announcer.Config {
	return announcer.Config{
		Schedule:    cfg.Announce.Schedule,
		LinkBaseURL: cfg.Announce.LinkBaseURL,
	}
}

func mapJournalConfig(cfg *config.Config) (journal.Config, bool, error) {
	if cfg.Journal == nil {
		return journal.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if driver == "" || driver == "none" {
		return journal.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
	if err != nil {
		return journal.Config{}, false, err
	}
	return journal.Config{
		Driver:      driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
		MaxRecords:  cfg.Journal.MaxRecords,
	}, true, nil
}

func validateConfig(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Posts.BaseURL) == "" {
		return fmt.Errorf("posts_api.base_url is required")
	}
	if strings.TrimSpace(cfg.Accounts.BaseURL) == "" {
		return fmt.Errorf("accounts_api.base_url is required")
	}
	if strings.TrimSpace(cfg.Mail.Host) == "" {
		return fmt.Errorf("mail.host is required")
	}
	if cfg.Mail.Port <= 0 || cfg.Mail.Port > 65535 {
		return fmt.Errorf("mail.port must be in 1..65535")
	}
	if strings.TrimSpace(cfg.Announce.LinkBaseURL) == "" {
		return fmt.Errorf("announce.link_base_url is required")
	}
	if cfg.Mail.RatePerSec < 0 {
		return fmt.Errorf("mail.rate_per_sec must be >= 0")
	}

	if _, err := config.ParseDurationField("posts_api.timeout", cfg.Posts.Timeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("accounts_api.timeout", cfg.Accounts.Timeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("mail.timeout", cfg.Mail.Timeout); err != nil {
		return err
	}
	if _, err := announcer.ParseSchedule(cfg.Announce.Schedule); err != nil {
		return err
	}
	if _, _, err := mapJournalConfig(cfg); err != nil {
		return err
	}
	if cfg.Journal != nil {
		if d := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)); d != "" && d != "none" {
			if strings.TrimSpace(cfg.Journal.Path) == "" {
				return fmt.Errorf("journal.path is required when journal is enabled")
			}
		}
	}
	return nil
}
