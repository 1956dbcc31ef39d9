// Package notify emails the failed meetings report.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/tinytelemetry/meetreport/internal/model"
	"github.com/tinytelemetry/meetreport/internal/report"
)

// ErrDelivery matches every *DeliveryError.
var ErrDelivery = errors.New("notify: delivery failed")

// DeliveryError wraps a message build or SMTP failure.
type DeliveryError struct {
	Stage string // "compose" or "send"
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrDelivery, e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// Config holds the relay and addressing settings.
type Config struct {
	Host     string
	Port     int
	From     string
	Password string
	To       string
	Subject  string
}

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer composes report emails and hands them to a Sender.
type Mailer struct {
	cfg    Config
	sender Sender
	logger *slog.Logger
}

// NewSMTPClient builds a go-mail client that submits over STARTTLS with
// PLAIN auth as cfg.From.
func NewSMTPClient(cfg Config) (*mail.Client, error) {
	port := cfg.Port
	if port <= 0 {
		port = model.DefaultSMTPPort
	}
	return mail.NewClient(cfg.Host,
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.From),
		mail.WithPassword(cfg.Password),
	)
}

// NewMailer returns a mailer. A nil logger uses slog.Default.
func NewMailer(cfg Config, sender Sender, logger *slog.Logger) *Mailer {
	if cfg.Subject == "" {
		cfg.Subject = model.DefaultMailSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{cfg: cfg, sender: sender, logger: logger}
}

// SendReport mails payload as an attachment, or a no-data notice when
// payload is nil. Failures are returned as *DeliveryError.
func (m *Mailer) SendReport(ctx context.Context, window model.DateWindow, payload []byte) error {
	msg, err := m.compose(window, payload)
	if err != nil {
		return &DeliveryError{Stage: "compose", Err: err}
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("email delivery failed", "to", m.cfg.To, "error", err)
		return &DeliveryError{Stage: "send", Err: err}
	}
	m.logger.Info("email sent", "to", m.cfg.To, "attachment", payload != nil)
	return nil
}

func (m *Mailer) compose(window model.DateWindow, payload []byte) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(m.cfg.Subject)

	if payload == nil {
		msg.SetBodyString(mail.TypeTextPlain, NoDataBody(window))
		return msg, nil
	}

	name := report.FileName(window)
	msg.SetBodyString(mail.TypeTextPlain, AttachmentBody(window, name))
	if err := msg.AttachReader(name, bytes.NewReader(payload),
		mail.WithFileContentType(mail.ContentType(report.ContentType)),
		mail.WithFileEncoding(mail.EncodingB64),
	); err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	return msg, nil
}

// NoDataBody is the body sent when the window has no failed meetings.
func NoDataBody(w model.DateWindow) string {
	return fmt.Sprintf("No failed meetings recorded in the period from %s to %s.",
		w.StartLabel(), w.EndLabel())
}

// AttachmentBody is the body sent alongside the spreadsheet.
func AttachmentBody(w model.DateWindow, fileName string) string {
	return fmt.Sprintf("Please find the attached Excel file that has the failed meetings log from %s to %s with filename: %s",
		w.StartLabel(), w.EndLabel(), fileName)
}
