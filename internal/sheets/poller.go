package sheets

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// DefaultInterval is how often the spreadsheet is pulled.
const DefaultInterval = 5 * time.Minute

// Handler processes a freshly exported file.
type Handler func(ctx context.Context, path string) error

// Poller exports the spreadsheet on a fixed interval and hands changed
// exports to its handler.
type Poller struct {
	Exporter *Exporter
	Dir      string
	Interval time.Duration
	Handler  Handler
	Logger   *slog.Logger

	last string
}

// Run exports immediately and then every Interval until ctx is done.
// Failed exports are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := p.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log.Info("polling spreadsheet", "id", p.Exporter.Config.SpreadsheetID, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Error("spreadsheet poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one export. It returns false when the content did not change
// since the previous poll; the duplicate export is removed.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	exp, err := p.Exporter.Export(ctx, p.Dir)
	if err != nil {
		return false, err
	}
	if exp.Digest == p.last {
		os.Remove(exp.Path)
		return false, nil
	}
	p.last = exp.Digest

	if p.Handler == nil {
		return true, nil
	}
	if err := p.Handler(ctx, exp.Path); err != nil {
		p.last = "" // retry the same content next time
		return true, err
	}
	return true, nil
}
