package mailer

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// session is the minimal staged SMTP surface Send drives. Production uses a
// net/smtp client with per-operation socket deadlines; tests inject fakes.
type session interface {
	extension(name string) (bool, string)
	startTLS(cfg *tls.Config) error
	auth(a smtp.Auth) error
	submit(from, rcpt string, payload io.WriterTo) error
	quit() error
}

type dialFunc func(ctx context.Context) (session, error)

// smtpSession wraps a net/smtp client. The raw conn is kept so every protocol
// stage can arm a fresh deadline; net/smtp itself has no timeout support.
type smtpSession struct {
	cli       *smtp.Client
	conn      net.Conn
	opTimeout time.Duration
}

func dialSMTP(host string, port int, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (session, error) {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		// The greeting and EHLO happen inside NewClient; cover them too.
		_ = conn.SetDeadline(time.Now().Add(timeout))
		cli, err := smtp.NewClient(conn, host)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &smtpSession{cli: cli, conn: conn, opTimeout: timeout}, nil
	}
}

func (s *smtpSession) arm() {
	if s.opTimeout > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.opTimeout))
	}
}

func (s *smtpSession) extension(name string) (bool, string) {
	return s.cli.Extension(name)
}

func (s *smtpSession) startTLS(cfg *tls.Config) error {
	s.arm()
	return s.cli.StartTLS(cfg)
}

func (s *smtpSession) auth(a smtp.Auth) error {
	s.arm()
	return s.cli.Auth(a)
}

func (s *smtpSession) submit(from, rcpt string, payload io.WriterTo) error {
	s.arm()
	if err := s.cli.Mail(from); err != nil {
		return err
	}
	if err := s.cli.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := s.cli.Data()
	if err != nil {
		return err
	}
	if _, err := payload.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *smtpSession) quit() error {
	s.arm()
	if err := s.cli.Quit(); err != nil {
		// QUIT failed; make sure the socket does not leak.
		return s.cli.Close()
	}
	return nil
}
