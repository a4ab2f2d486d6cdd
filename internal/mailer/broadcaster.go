package mailer

import (
	"context"
	"crypto/tls"
	"io"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"
	gomail "gopkg.in/gomail.v2"

	logx "announcerd/pkg/logx"
)

// Config controls the outbound SMTP session.
//
// All messages in a Send call share one connection. From defaults to
// Username. RatePerSec (0 = unlimited) paces per-recipient submissions.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout bounds each protocol stage (dial, STARTTLS, auth, submit).
	Timeout time.Duration

	// DisableStartTLS skips the TLS upgrade even when the server offers it.
	// Acceptable policy for local testing only.
	DisableStartTLS    bool
	InsecureSkipVerify bool

	RatePerSec int
}

// Broadcaster owns the lifecycle of one SMTP session per Send call:
// connect -> (STARTTLS) -> authenticate -> submit every message to every
// recipient -> best-effort quit.
//
// Send either fully succeeds or fails with exactly one tagged *Error; there
// is no partial-success report. Callers cannot tell how many recipients of
// the aborting message were reached, and the retry policy upstream has to
// tolerate that.
type Broadcaster struct {
	cfg     Config
	dial    dialFunc
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Broadcaster {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Broadcaster{
		cfg:  cfg,
		dial: dialSMTP(cfg.Host, cfg.Port, cfg.Timeout),
		log:  log,
	}
	if cfg.RatePerSec > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return b
}

// Send submits every message to every recipient over a single session.
func (b *Broadcaster) Send(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	sess, err := b.dial(ctx)
	if err != nil {
		return classify("connect", KindConnect, err)
	}
	// Close is best-effort cleanup, not part of the contract. A failure here
	// never surfaces to the caller.
	defer func() { _ = sess.quit() }()

	if !b.cfg.DisableStartTLS {
		if ok, _ := sess.extension("STARTTLS"); ok {
			tc := &tls.Config{
				ServerName:         b.cfg.Host,
				InsecureSkipVerify: b.cfg.InsecureSkipVerify,
			}
			if err := sess.startTLS(tc); err != nil {
				return classify("starttls", KindConnect, err)
			}
		}
	}

	if b.cfg.Username != "" {
		a := smtp.PlainAuth("", b.cfg.Username, b.cfg.Password, b.cfg.Host)
		if err := sess.auth(a); err != nil {
			return classify("login", KindLogin, err)
		}
	}

	submitted := 0
	for _, m := range msgs {
		for _, rcpt := range m.Recipients() {
			if b.limiter != nil {
				if err := b.limiter.Wait(ctx); err != nil {
					return &Error{Kind: KindOther, Op: "send", Err: err}
				}
			}
			payload := renderPayload(b.cfg.From, rcpt, m.Subject(), m.Body())
			if err := sess.submit(b.cfg.From, rcpt, payload); err != nil {
				// Aborts remaining sends in this call.
				return classify("send", KindSend, err)
			}
			submitted++
		}
	}

	b.log.Debug("mail session complete",
		logx.Int("messages", len(msgs)),
		logx.Int("submissions", submitted))
	return nil
}

// renderPayload builds the RFC 822 transport payload for a single recipient.
func renderPayload(from, to, subject, body string) io.WriterTo {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}
