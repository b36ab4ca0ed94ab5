// Package notify delivers operator notifications over SMTP.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/internal/config"
)

const notifySubject = "Invalid Session ID – Action Required"

// Mailer sends the invalid-session notification email.
type Mailer struct {
	cfg         config.SMTPConfig
	frontendURL string
	logger      *logrus.Logger
}

// NewMailer creates a mailer. frontendURL is embedded in the email so the
// operator can jump straight to the credential-update page.
func NewMailer(cfg config.SMTPConfig, frontendURL string, logger *logrus.Logger) *Mailer {
	return &Mailer{
		cfg:         cfg,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Notify emails recipient about the given failure reason. A single attempt,
// no retries: the caller treats delivery as best effort.
func (m *Mailer) Notify(ctx context.Context, recipient, reason string) error {
	msg, err := m.buildMessage(recipient, reason)
	if err != nil {
		return fmt.Errorf("failed to build notification: %w", err)
	}

	if err := m.send(recipient, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	m.logger.WithField("recipient", recipient).Info("Notification email sent")
	return nil
}

// buildMessage assembles the MIME message.
func (m *Mailer) buildMessage(recipient, reason string) ([]byte, error) {
	html := fmt.Sprintf(
		"<p>Your current session ID is invalid or expired (%s). Please enter a new session ID using the following link:</p>"+
			"<a href=%q>Update Session ID</a>"+
			"<p>The system will retry automatically after the session is updated.</p>",
		reason, m.frontendURL,
	)
	text := fmt.Sprintf(
		"Your current session ID is invalid or expired (%s).\nUpdate it here: %s\nThe system will retry automatically after the session is updated.\n",
		reason, m.frontendURL,
	)

	part, err := enmime.Builder().
		From("DM Monitor", m.cfg.Username).
		To("", recipient).
		Subject(notifySubject).
		Text([]byte(text)).
		HTML([]byte(html)).
		Build()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// send delivers the message, picking implicit TLS for port 465 and STARTTLS
// otherwise.
func (m *Mailer) send(recipient string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	tlsCfg := &tls.Config{ServerName: m.cfg.Host}

	var client *smtp.Client
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		client, err = smtp.NewClient(conn, m.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	defer client.Close()

	if m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send data command: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
