// Package mailer delivers the rendered report over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

// SubjectDateLayout is the date appended to the subject
const SubjectDateLayout = "2006-01-02"

// ErrNoRecipients is returned when neither to nor bcc holds an address
var ErrNoRecipients = errors.New("no recipients configured")

// Config holds the SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Bcc      []string
}

// Sender delivers built messages. *mail.Client implements it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends HTML reports
type Mailer struct {
	cfg    Config
	sender Sender
	now    func() time.Time
}

// Option configures a Mailer
type Option func(*Mailer)

// WithSender replaces the SMTP client built from Config
func WithSender(s Sender) Option {
	return func(m *Mailer) { m.sender = s }
}

// WithClock replaces time.Now for the Date header
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) { m.now = now }
}

// New creates a Mailer. Without WithSender an SMTP client is built from cfg.
func New(cfg Config, opts ...Option) (*Mailer, error) {
	m := &Mailer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	if m.sender == nil {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		m.sender = client
	}
	return m, nil
}

// NewClient creates an SMTP client that upgrades to STARTTLS when the server
// offers it and authenticates with PLAIN when a username is set.
func NewClient(cfg Config) (*mail.Client, error) {
	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client for %s: %w", cfg.Host, err)
	}
	return client, nil
}

// Subject builds "<title> - YYYY-MM-DD" for the given day
func Subject(title string, day time.Time) string {
	return title + " - " + day.Format(SubjectDateLayout)
}

// Message builds the HTML message. Bcc recipients are envelope only and never
// written to the headers.
func (m *Mailer) Message(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if len(m.cfg.To) > 0 {
		if err := msg.To(m.cfg.To...); err != nil {
			return nil, fmt.Errorf("invalid to address: %w", err)
		}
	}
	if len(m.cfg.Bcc) > 0 {
		if err := msg.Bcc(m.cfg.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc address: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

// Send mails body to every to and bcc recipient
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if len(m.cfg.To)+len(m.cfg.Bcc) == 0 {
		return ErrNoRecipients
	}

	msg, err := m.Message(subject, body)
	if err != nil {
		return err
	}

	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}
	return nil
}
