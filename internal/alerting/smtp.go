package alerting

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/learningops/lmsync/internal/config"
)

// SMTPNotifier delivers alerts as plain-text email.
type SMTPNotifier struct {
	cfg     config.AlertConfig
	timeout time.Duration
}

// NewSMTPNotifier creates an SMTP-backed notifier.
func NewSMTPNotifier(cfg config.AlertConfig) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:     cfg,
		timeout: 30 * time.Second,
	}
}

// Notify sends the alert to every configured recipient.
func (n *SMTPNotifier) Notify(subject, message string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	conn, err := net.DialTimeout("tcp", addr, n.timeout)
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if n.cfg.SMTPUser != "" && n.cfg.SMTPPassword != "" {
		auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, to := range n.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("set recipient %s: %w", to, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}

	if _, err := writer.Write([]byte(n.buildMessage(subject, message))); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// Message is already accepted at this point; a failed QUIT is harmless.
	_ = client.Quit()

	return nil
}

func (n *SMTPNotifier) buildMessage(subject, message string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.cfg.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(message)
	msg.WriteString("\r\n")
	return msg.String()
}
