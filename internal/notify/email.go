package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/internal/config"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Sender defines the interface for sending emails.
// raw must contain the full message, headers included.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, raw []byte) error
}

// NewSender returns an SMTP sender, or a logging sender when no host is configured.
func NewSender(cfg config.SMTPConfig, log *zap.Logger) Sender {
	if cfg.Host == "" {
		log.Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{from: cfg.From, log: log}
	}
	return &SMTPSender{
		from: cfg.From,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
		log:  log,
	}
}

/* ================================ SMTP =================================== */

// SMTPSender implements Sender using net/smtp.
type SMTPSender struct {
	from string
	addr string
	auth smtp.Auth
	log  *zap.Logger
}

// Send sends raw over SMTP. net/smtp has no context support, so a cancelled ctx
// abandons the wait but not the underlying dial.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, raw []byte) error {
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(s.addr, s.auth, s.from, to, raw) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp error: %w", err)
		}
		s.log.Debug("email sent", zap.Strings("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp error: %w", ctx.Err())
	}
}

/* =============================== Logging ================================= */

// LoggingSender just logs email details. Used in development.
type LoggingSender struct {
	from string
	log  *zap.Logger
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, raw []byte) error {
	s.log.Info("email (logged)",
		zap.Strings("to", to),
		zap.String("from", s.from),
		zap.String("subject", subject),
		zap.ByteString("raw", raw))
	return nil
}

/* ============================ Direct channel ============================= */

// DirectChannel sends email inline on the caller's goroutine.
type DirectChannel struct {
	sender Sender
	from   string
	clock  func() time.Time
}

func NewDirectChannel(sender Sender, from string) *DirectChannel {
	return &DirectChannel{sender: sender, from: from, clock: time.Now}
}

func (c *DirectChannel) DeliverEmail(ctx context.Context, _ uuid.UUID, to, subject string, body []byte) (models.DeliveryStatus, error) {
	raw := ComposeEmail(c.from, to, subject, body, c.clock())
	if err := c.sender.Send(ctx, []string{to}, subject, raw); err != nil {
		return models.DeliveryFailed, err
	}
	return models.DeliverySent, nil
}

// ComposeEmail builds a plain-text RFC 5322 message.
func ComposeEmail(from, to, subject string, body []byte, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(string(body), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
