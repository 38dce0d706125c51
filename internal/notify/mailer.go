package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"lifelockr/internal/config"
)

const otpSubject = "Your LifeLockr verification code"

var ErrBadRecipient = errors.New("notify: invalid recipient")

// Mailer delivers verification codes over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// Noop is used when SMTP is not configured. It never sees the code in logs.
type Noop struct {
	logger *slog.Logger
}

func (n *Noop) SendOTP(_ context.Context, to, _ string, _ time.Time) error {
	n.logger.Warn("otp delivery disabled; smtp not configured", "email", to)
	return nil
}

// Sender is satisfied by *Mailer and *Noop.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, expires time.Time) error
}

// New returns a Mailer, or a Noop when host or from is missing.
func New(cfg config.SMTPConfig, logger *slog.Logger) Sender {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	if cfg.Security == "" {
		cfg.Security = "starttls"
	}
	if cfg.Host == "" || cfg.From == "" {
		logger.Info("mailer disabled; smtp host or from missing")
		return &Noop{logger: logger}
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	logger.Info("mailer enabled", "host", cfg.Host, "port", cfg.Port, "security", cfg.Security, "user", maskForLog(cfg.User))
	return &Mailer{cfg: cfg, logger: logger}
}

func (m *Mailer) SendOTP(ctx context.Context, to, code string, expires time.Time) error {
	if strings.ContainsAny(to, "\r\n") || !strings.Contains(to, "@") {
		return ErrBadRecipient
	}
	body := fmt.Sprintf("Your verification code is %s.\n\nIt expires at %s UTC (5 minutes). If you did not try to sign in, change your password.",
		code, expires.UTC().Format(time.RFC3339))
	msg := message(m.cfg.From, to, otpSubject, body)

	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return m.deliver(c, to, msg)
}

func (m *Mailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	d := &net.Dialer{}
	var conn net.Conn
	var err error
	switch m.cfg.Security {
	case "ssl", "smtps":
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: m.cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	default:
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if m.cfg.Security == "starttls" {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				c.Close()
				return nil, err
			}
		}
	}
	return c, nil
}

func (m *Mailer) deliver(c *smtp.Client, to string, msg []byte) error {
	if m.cfg.User != "" && m.cfg.Pass != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func message(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func maskForLog(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 2 {
		return "***"
	}
	return s[:1] + "***" + s[len(s)-1:]
}
