package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, to []string, subject string, content string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender abstracts gomail.Dialer so tests can capture messages.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	sender Sender
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func NewWithSender(from string, sender Sender) Service {
	return &smtpService{from: from, sender: sender}
}

func (s *smtpService) Send(ctx context.Context, to []string, subject string, content string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sender.DialAndSend(BuildMessage(s.from, to, subject, content)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func BuildMessage(from string, to []string, subject, content string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)
	return m
}

type logService struct {
	logger *logger.Logger
}

// NewLogService only logs outgoing mail. Used when SMTP is not configured.
func NewLogService(log *logger.Logger) Service {
	return &logService{logger: log}
}

func (s *logService) Send(_ context.Context, to []string, subject string, _ string) error {
	s.logger.Info("Email delivery disabled, dropping message",
		"to", to,
		"subject", subject)
	return nil
}
