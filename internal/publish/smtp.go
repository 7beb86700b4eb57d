package publish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SMTPConfig holds SMTP connection settings and recipients.
type SMTPConfig struct {
	Host     string   `mapstructure:"host" yaml:"host,omitempty"`
	Port     int      `mapstructure:"port" yaml:"port,omitempty"`
	Username string   `mapstructure:"username" yaml:"username,omitempty"`
	Password string   `mapstructure:"password" yaml:"password,omitempty"`
	From     string   `mapstructure:"from" yaml:"from,omitempty"`
	To       []string `mapstructure:"to" yaml:"to,omitempty"`
	Subject  string   `mapstructure:"subject" yaml:"subject,omitempty"`
}

// Validate returns an error naming every missing or malformed setting.
func (c SMTPConfig) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "publish.smtp.host")
	}
	if c.Username == "" {
		missing = append(missing, "publish.smtp.username")
	}
	if c.Password == "" {
		missing = append(missing, "publish.smtp.password")
	}
	if c.From == "" {
		missing = append(missing, "publish.smtp.from")
	}
	if len(c.To) == 0 {
		missing = append(missing, "publish.smtp.to")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete SMTP configuration — set %s", strings.Join(missing, ", "))
	}
	if !ValidateEmail(c.From) {
		return fmt.Errorf("invalid sender address: %q", c.From)
	}
	for _, addr := range c.To {
		if !ValidateEmail(addr) {
			return fmt.Errorf("invalid recipient email address: %q", addr)
		}
	}
	return nil
}

func (c SMTPConfig) port() int {
	if c.Port == 0 {
		return 587
	}
	return c.Port
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail returns true if s looks like a valid email address.
func ValidateEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// SMTPPublisher mails each item as an attachment.
type SMTPPublisher struct {
	Config SMTPConfig

	// send defaults to smtp.SendMail (or implicit TLS on port 465).
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func (p *SMTPPublisher) Name() string { return KindSMTP }

func (p *SMTPPublisher) Publish(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}

	msg, err := buildMessage(p.Config, item)
	if err != nil {
		return fmt.Errorf("could not build email: %w", err)
	}

	addr := net.JoinHostPort(p.Config.Host, strconv.Itoa(p.Config.port()))
	auth := smtp.PlainAuth("", p.Config.Username, p.Config.Password, p.Config.Host)

	send := p.send
	if send == nil {
		send = smtp.SendMail
		if p.Config.port() == 465 {
			send = sendTLS
		}
	}
	if err := send(addr, auth, p.Config.From, p.Config.To, msg); err != nil {
		return fmt.Errorf("could not send %s: %w", filepath.Base(item.Path), err)
	}
	return nil
}

func buildMessage(cfg SMTPConfig, item Item) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	textHeader := make(textproto.MIMEHeader)
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "8bit")
	part, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(item.Caption)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read attachment %s: %w", item.Path, err)
	}
	filename := filepath.Base(item.Path)
	attachHeader := make(textproto.MIMEHeader)
	attachHeader.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	attachHeader.Set("Content-Transfer-Encoding", "base64")
	attachHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	part, err = writer.CreatePart(attachHeader)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	// 76-char lines per RFC 2045
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		if _, err := part.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "Price list: " + filename
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n", writer.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("TLS connection failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("SMTP client creation failed: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
