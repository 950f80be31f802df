// -----------------------------------------------------------------------
// Mailer Service - SMTP delivery of the analysis report
// Markdown bodies are sent as text + HTML alternatives with an optional chart
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// ConfigFromEmail maps the [email] section
func ConfigFromEmail(c common.EmailConfig) Config {
	return Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		FromName: c.FromName,
		UseTLS:   c.UseTLS,
	}
}

// deliverFunc hands a composed message to the server at addr
type deliverFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Service sends report emails
type Service struct {
	config  Config
	logger  arbor.ILogger
	deliver deliverFunc
	now     func() time.Time
}

// Compile-time assertion
var _ interfaces.MailerService = (*Service)(nil)

// NewService creates a new mailer service
func NewService(config Config, logger arbor.ILogger) *Service {
	if config.Port == 0 {
		config.Port = 465
	}
	if config.FromName == "" {
		config.FromName = "Moverwatch"
	}
	s := &Service{
		config: config,
		logger: logger,
		now:    time.Now,
	}
	if config.UseTLS {
		s.deliver = sendWithTLS
	} else {
		s.deliver = smtp.SendMail
	}
	return s
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Username != "" && s.config.Password != "" && s.config.From != ""
}

// SendReport sends body, treated as markdown, to every recipient.
// When attachmentPath is set the file is attached and then removed, whether or not delivery succeeds.
func (s *Service) SendReport(ctx context.Context, to []string, subject, body, attachmentPath string) error {
	var attachment []byte
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			return fmt.Errorf("failed to read attachment %s: %w", attachmentPath, err)
		}
		attachment = data
		defer func() {
			if err := os.Remove(attachmentPath); err != nil {
				s.logger.Warn().Err(err).Str("path", attachmentPath).Msg("Failed to remove attachment")
			}
		}()
	}

	recipients := cleanRecipients(to)
	if len(recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if s.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if s.config.Username == "" || s.config.Password == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}
	if s.config.From == "" {
		return fmt.Errorf("from email not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlBody, err := renderMarkdown(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to render markdown, sending plain text only")
	}

	msg, err := s.compose(recipients, subject, body, htmlBody, filepath.Base(attachmentPath), attachment)
	if err != nil {
		return fmt.Errorf("failed to compose email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	if err := s.deliver(addr, auth, s.config.From, recipients, msg); err != nil {
		s.logger.Error().Err(err).Strs("to", recipients).Msg("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info().
		Strs("to", recipients).
		Str("subject", subject).
		Int("attachment_bytes", len(attachment)).
		Msg("Email sent")
	return nil
}

// compose builds a multipart/mixed message: a text/HTML alternative and an optional attachment
func (s *Service) compose(to []string, subject, textBody, htmlBody, attachmentName string, attachment []byte) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Name: s.config.FromName, Address: s.config.From}})
	toList := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		toList = append(toList, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", toList)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writeInline(iw, "text/plain", textBody); err != nil {
		return nil, err
	}
	if htmlBody != "" {
		if err := writeInline(iw, "text/html", htmlBody); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	if len(attachment) > 0 {
		var ah mail.AttachmentHeader
		ah.SetContentType(attachmentType(attachmentName), nil)
		ah.SetFilename(attachmentName)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(attachment); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "base64")
	w, err := iw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	return w.Close()
}

func attachmentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// renderMarkdown converts the report to HTML. Outer code fences that models often wrap
// their answer in are removed first.
func renderMarkdown(markdown string) (string, error) {
	markdown = stripOuterCodeFences(markdown)
	if markdown == "" {
		return "", nil
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return "<!DOCTYPE html>\n<html><body style=\"font-family: -apple-system, Segoe UI, Arial, sans-serif; line-height: 1.5;\">\n" +
		buf.String() + "</body></html>", nil
}

func stripOuterCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	firstNewline := strings.Index(content, "\n")
	if firstNewline == -1 {
		return content
	}
	inner := content[firstNewline+1:]
	if end := strings.LastIndex(inner, "```"); end >= 0 && strings.TrimSpace(inner[end+3:]) == "" {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}

// cleanRecipients trims, splits comma lists and drops duplicates
func cleanRecipients(to []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range to {
		for _, addr := range common.SplitList(entry) {
			key := strings.ToLower(addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}

// sendWithTLS sends over an implicit TLS connection, falling back to STARTTLS
// when the direct TLS dial fails (port 587 servers).
func sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := strings.Cut(addr, ":")

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return transmit(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade
func sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := strings.Cut(addr, ":")

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	return transmit(client, auth, from, to, msg)
}

func transmit(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
