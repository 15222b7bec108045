// Package notify delivers outbound email.  Callers log delivery failures;
// nothing here retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/config"
)

// Message is one HTML email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("notify: empty recipient")
	}
	if strings.ContainsAny(m.To+m.Subject, "\r\n") {
		return errors.New("notify: header injection")
	}
	return nil
}

// Sender sends one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// NewSender picks the transport named by cfg.Provider.
func NewSender(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "http":
		if cfg.APIBaseURL == "" {
			return nil, errors.New("notify: MAIL_API_URL is required for the http provider")
		}
		return NewHTTPSender(cfg, logger), nil
	case "log", "":
		return NewLogSender(logger), nil
	}
	return nil, fmt.Errorf("notify: unknown mail provider %q", cfg.Provider)
}

// SMTPSender talks to a relay with optional PLAIN auth.
type SMTPSender struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		host: cfg.SMTPHost,
		from: cfg.From,
		send: smtp.SendMail,
	}
	if cfg.SMTPPassword != "" {
		user := cfg.SMTPUser
		if user == "" {
			user = cfg.From
		}
		s.auth = smtp.PlainAuth("", user, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return s
}

// Send ignores ctx; net/smtp has no cancellation.
func (s *SMTPSender) Send(_ context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, m.To, m.Subject, m.HTML)
	return s.send(s.addr, s.auth, s.from, []string{m.To}, []byte(msg))
}

// HTTPSender posts messages to a transactional mail API as JSON.
type HTTPSender struct {
	client *resty.Client
	from   string
	logger *zap.Logger
}

type apiRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func NewHTTPSender(cfg config.MailConfig, logger *zap.Logger) *HTTPSender {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPSender{client: client, from: cfg.From, logger: logger}
}

func (s *HTTPSender) Send(ctx context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(apiRequest{From: s.from, To: m.To, Subject: m.Subject, HTML: m.HTML}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("mail api: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("mail api rejected message",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()))
		return fmt.Errorf("mail api: status %d", resp.StatusCode())
	}
	return nil
}

// LogSender only logs; used in development.
type LogSender struct{ logger *zap.Logger }

func NewLogSender(logger *zap.Logger) *LogSender { return &LogSender{logger: logger} }

func (s *LogSender) Send(_ context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	s.logger.Info("email", zap.String("to", m.To), zap.String("subject", m.Subject))
	return nil
}
