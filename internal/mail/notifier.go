package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	resetSubject       = "Password Reset"
	defaultSendTimeout = 10 * time.Second
)

type SMTPConfig struct {
	Host         string
	Port         int
	User         string
	Pass         string
	From         string
	ResetPageURL string

	// Timeout bounds the whole SMTP exchange, dial included.
	Timeout time.Duration
}

type sendMailFunc func(ctx context.Context, to string, msg []byte) error

// SMTPNotifier mails password reset links through an SMTP relay.
type SMTPNotifier struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
	send sendMailFunc
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("mail host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail sender is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if _, err := url.Parse(cfg.ResetPageURL); err != nil || cfg.ResetPageURL == "" {
		return nil, fmt.Errorf("invalid reset page url %q", cfg.ResetPageURL)
	}

	n := &SMTPNotifier{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
	n.send = n.deliver
	if cfg.User != "" {
		n.auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	return n, nil
}

func (n *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	link, err := ResetLink(n.cfg.ResetPageURL, token)
	if err != nil {
		return err
	}

	msg := buildMessage(n.cfg.From, email, resetSubject, resetBody(link))
	if err := n.send(ctx, email, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// deliver runs the SMTP exchange with the context deadline applied to the
// connection, upgrading to TLS when the relay offers STARTTLS.
func (n *SMTPNotifier) deliver(ctx context.Context, to string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return fmt.Errorf("set smtp deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.auth != nil {
		if err := client.Auth(n.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// ResetLink appends the token as the "token" query parameter of base.
func ResetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse reset page url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func resetBody(link string) string {
	return fmt.Sprintf(`Click this link to reset your password: <a href="%s">Reset password</a>`, link)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

type Logger interface {
	Info(message string, fields map[string]any)
}

// LogNotifier stands in when no SMTP relay is configured. It records that a
// reset was requested but never logs the token.
type LogNotifier struct {
	logger Logger
}

func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordResetEmail(_ context.Context, email, _ string) error {
	n.logger.Info("password_reset_email_skipped", map[string]any{
		"to":     email,
		"reason": "mail host not configured",
	})
	return nil
}
