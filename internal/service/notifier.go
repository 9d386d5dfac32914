package service

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/config"
)

const otpSubject = "WhatsAssist Login OTP"

// Notifier delivers a freshly issued code to its owner.
type Notifier interface {
	SendOTP(ctx context.Context, to, code string) error
}

// SMTPNotifier sends the code through an SMTP relay. Port 465 uses implicit
// TLS; any other port upgrades with STARTTLS when offered.
type SMTPNotifier struct {
	cfg       *config.SMTPConfig
	otpExpiry time.Duration
	logger    *logrus.Logger
}

// NewSMTPNotifier builds a notifier whose emails state otpExpiry as the code's lifetime.
func NewSMTPNotifier(cfg *config.SMTPConfig, otpExpiry time.Duration, logger *logrus.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender is required")
	}

	if otpExpiry <= 0 {
		return nil, fmt.Errorf("otp expiry must be positive")
	}

	return &SMTPNotifier{
		cfg:       cfg,
		otpExpiry: otpExpiry,
		logger:    logger,
	}, nil
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, to, code string) error {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	if err := n.send(ctx, to, buildOTPMessage(n.cfg.From, to, code, n.otpExpiry)); err != nil {
		n.logger.WithError(err).WithField("to", to).Error("Failed to send OTP email")
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}

	n.logger.WithField("to", to).Info("OTP email sent")
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, to string, message []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: n.cfg.Host}
	if n.cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if n.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return err
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// LogNotifier writes the code to the log instead of mailing it. Development only.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTP(ctx context.Context, to, code string) error {
	n.logger.WithFields(logrus.Fields{
		"to":  to,
		"otp": code,
	}).Warn("OTP generated (logged for development)")
	return nil
}

func expiryPhrase(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "1 minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%d seconds", d/time.Second)
	default:
		return d.String()
	}
}

func buildOTPMessage(from, to, code string, expiry time.Duration) []byte {
	lifetime := expiryPhrase(expiry)
	text := fmt.Sprintf("Your security code for WhatsAssist login is: %s\r\n\r\n"+
		"This code will expire in %s.\r\n"+
		"If you didn't request this code, please ignore this email.\r\n", code, lifetime)

	html := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #4F46E5;">WhatsAssist Security Code</h2>
<p>Your security code for WhatsAssist login is:</p>
<div style="background-color: #F3F4F6; padding: 20px; border-radius: 8px; text-align: center; margin: 20px 0;">
<h1 style="color: #4F46E5; letter-spacing: 8px; font-size: 32px; margin: 0;">%s</h1>
</div>
<p>This code will expire in %s.</p>
<p>If you didn't request this code, please ignore this email.</p>
</div>`, code, lifetime)

	boundary := multipartBoundary()

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", otpSubject)
	fmt.Fprintf(&sb, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%s\r\n", boundary)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	sb.WriteString(text)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	sb.WriteString(html)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)

	return []byte(sb.String())
}

func multipartBoundary() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "whatsassist-boundary"
	}
	return "whatsassist-" + hex.EncodeToString(b[:])
}
