package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/photoshare/internal/service"
)

type Pruner interface {
	Prune(ctx context.Context, now time.Time) (service.PruneResult, error)
}

// PruneLoop drops ledger entries and refresh links whose natural expiry
// has passed, once per interval, until ctx is cancelled. A failed round is
// logged and retried on the next tick.
type PruneLoop struct {
	Target   Pruner
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

func (p *PruneLoop) Run(ctx context.Context) {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	l = l.With("worker", "pruner")

	t := time.NewTicker(p.Interval)
	defer t.Stop()

	l.Info("pruner_started", "interval", p.Interval.String())
	for {
		select {
		case <-ctx.Done():
			l.Info("pruner_stopped")
			return
		case <-t.C:
			p.once(ctx, l, now())
		}
	}
}

func (p *PruneLoop) once(ctx context.Context, l *slog.Logger, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := p.Target.Prune(ctx, now)
	if err != nil {
		l.Warn("prune_failed", "error", err)
		return
	}
	if res.LedgerEntries > 0 || res.RefreshLinks > 0 {
		l.Info("prune_done", "ledger_entries", res.LedgerEntries, "refresh_links", res.RefreshLinks)
	}
}
