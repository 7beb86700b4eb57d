// Package publish delivers repriced files to their destination: an outbox
// directory, an e-mail recipient list or a Telegram chat.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klytics/pricekit/internal/formats/xlsx"
)

// Item is one file to deliver.
type Item struct {
	Path    string
	Caption string
}

// Publisher delivers items.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, item Item) error
}

// Kinds of publishers accepted by New.
const (
	KindNone     = "none"
	KindDir      = "dir"
	KindSMTP     = "smtp"
	KindTelegram = "telegram"
)

// Config selects and configures a publisher.
type Config struct {
	Kind     string         `mapstructure:"kind" yaml:"kind"`
	Dir      string         `mapstructure:"dir" yaml:"dir,omitempty"`
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp,omitempty"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram,omitempty"`
}

// New returns the publisher described by cfg.
func New(cfg Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindNone:
		return Discard{}, nil
	case KindDir:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("publish.dir is not set — choose an outbox directory")
		}
		return &DirPublisher{Dir: cfg.Dir}, nil
	case KindSMTP:
		if err := cfg.SMTP.Validate(); err != nil {
			return nil, err
		}
		return &SMTPPublisher{Config: cfg.SMTP}, nil
	case KindTelegram:
		if err := cfg.Telegram.Validate(); err != nil {
			return nil, err
		}
		return NewTelegram(cfg.Telegram), nil
	default:
		return nil, fmt.Errorf("unknown publisher %q — use one of: none, dir, smtp, telegram", cfg.Kind)
	}
}

// Discard drops every item.
type Discard struct{}

func (Discard) Name() string { return KindNone }

func (Discard) Publish(context.Context, Item) error { return nil }

// Caption describes a processed file for its recipients.
func Caption(original, profile string, markup float64, updated int, at time.Time) string {
	var b strings.Builder
	b.WriteString("Price list processed\n")
	fmt.Fprintf(&b, "Source file: %s\n", original)
	if profile != "" {
		fmt.Fprintf(&b, "Profile: %s\n", profile)
	}
	sign := "+"
	if markup < 0 {
		sign = ""
	}
	fmt.Fprintf(&b, "Markup: %s%s\n", sign, xlsx.FormatPrice(markup))
	fmt.Fprintf(&b, "Prices updated: %d\n", updated)
	fmt.Fprintf(&b, "Processed at: %s", at.Format("2006-01-02 15:04:05"))
	return b.String()
}
