package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTelegramURL is the Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// captionLimit is the Bot API limit for document captions.
const captionLimit = 1024

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	ChatID  string `mapstructure:"chat_id" yaml:"chat_id,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// Validate checks that a token and a target chat are set.
func (c TelegramConfig) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "publish.telegram.token")
	}
	if c.ChatID == "" {
		missing = append(missing, "publish.telegram.chat_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete Telegram configuration — set %s", strings.Join(missing, ", "))
	}
	return nil
}

// TelegramPublisher uploads items to a chat with sendDocument.
type TelegramPublisher struct {
	config TelegramConfig
	client *http.Client
}

// NewTelegram creates a Telegram publisher.
func NewTelegram(cfg TelegramConfig) *TelegramPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramURL
	}
	return &TelegramPublisher{
		config: cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *TelegramPublisher) Name() string { return KindTelegram }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (p *TelegramPublisher) Publish(ctx context.Context, item Item) error {
	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", item.Path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", p.config.ChatID); err != nil {
		return err
	}
	if item.Caption != "" {
		if err := w.WriteField("caption", truncate(item.Caption, captionLimit)); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filepath.Base(item.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("could not read %s: %w", item.Path, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/bot" + p.config.Token + "/sendDocument"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram upload failed: %w", redactToken(err, p.config.Token))
	}
	defer resp.Body.Close()

	var result telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return fmt.Errorf("telegram returned HTTP %d with an unreadable body", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected %s: %d %s", filepath.Base(item.Path), result.ErrorCode, result.Description)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// redactToken keeps the bot token out of error messages, which embed the URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "[REDACTED]"))
}
