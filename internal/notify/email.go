// Package notify delivers operator-facing side effects: the appointment
// request email triggered by the conversation pipeline.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// AppointmentRequest carries the details extracted from a conversation for a
// staff follow-up. All three extracted fields are required before a send.
type AppointmentRequest struct {
	Name              string
	Phone             string
	PreferredDatetime string
	ServiceReason     string
}

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SMTP, API-based) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// SMTPConfig holds SMTP credentials and routing for the appointment mailbox.
type SMTPConfig struct {
	Server    string
	Port      int
	Sender    string
	Password  string
	Recipient string
}

// SMTPSender sends plain-text UTF-8 email over SMTP with STARTTLS.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *logging.Logger
	// send is swappable in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns nil when the sender credentials are not configured,
// letting callers degrade the email feature instead of failing sends later.
func NewSMTPSender(cfg SMTPConfig, logger *logging.Logger) *SMTPSender {
	if cfg.Sender == "" || cfg.Password == "" {
		return nil
	}
	if cfg.Server == "" {
		cfg.Server = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SMTPSender{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// Send builds a MIME message and submits it to the configured relay.
func (s *SMTPSender) Send(_ context.Context, msg EmailMessage) error {
	body, err := buildMessage(s.cfg.Sender, msg.To, msg.Subject, msg.Body)
	if err != nil {
		return fmt.Errorf("notify: failed to build email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Sender, s.cfg.Password, s.cfg.Server)
	if err := s.send(addr, auth, s.cfg.Sender, []string{msg.To}, body); err != nil {
		s.logger.Error("smtp send failed", "to", msg.To, "relay", addr, "error", err)
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}
	s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func buildMessage(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AppointmentMailer turns extracted appointment requests into the fixed
// operator email format.
type AppointmentMailer struct {
	sender    EmailSender
	recipient string
	logger    *logging.Logger
}

// NewAppointmentMailer wires an EmailSender to the clinic mailbox. A nil
// sender produces a mailer that logs and skips (feature degraded).
func NewAppointmentMailer(sender EmailSender, recipient string, logger *logging.Logger) *AppointmentMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentMailer{sender: sender, recipient: recipient, logger: logger}
}

// SendAppointmentRequest emails the extracted details to the clinic.
func (m *AppointmentMailer) SendAppointmentRequest(ctx context.Context, req AppointmentRequest) error {
	if m.sender == nil || m.recipient == "" {
		m.logger.Error("appointment email not configured; skipping send", "name", req.Name)
		return nil
	}

	subject := fmt.Sprintf("New Appointment Request via %s Bot: %s", "Layla", req.Name)
	body := fmt.Sprintf(
		"A new appointment request has been received from Layla (the virtual assistant):\n\n"+
			"Name: %s\n"+
			"Phone (WhatsApp ID): %s\n"+
			"Preferred Date/Time: %s\n"+
			"Service/Reason: %s\n\n"+
			"Please follow up with the client to confirm their appointment.",
		req.Name, req.Phone, req.PreferredDatetime, req.ServiceReason,
	)
	return m.sender.Send(ctx, EmailMessage{To: m.recipient, Subject: subject, Body: body})
}

// StubEmailSender logs instead of sending; used in tests and when email is
// disabled.
type StubEmailSender struct {
	logger *logging.Logger
	Sent   []EmailMessage
}

// NewStubEmailSender creates a stub email sender that records messages.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send records the message without delivering it.
func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	s.Sent = append(s.Sent, msg)
	return nil
}
