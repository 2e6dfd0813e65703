package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"pharmapos-backend/internal/ports"
)

// Pruner periodically deletes expired keys from a store.
type Pruner struct {
	Store    ports.IdempotencyStore
	Interval time.Duration
	Logger   *slog.Logger

	scheduler *gocron.Scheduler
}

func (p *Pruner) Start() error {
	if p.Interval <= 0 {
		p.Interval = time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(p.Interval).Do(p.RunOnce); err != nil {
		return err
	}
	s.StartAsync()
	p.scheduler = s
	return nil
}

func (p *Pruner) Stop() {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}

func (p *Pruner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := p.Store.Prune(ctx)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("idempotency prune failed", "err", err)
		}
		return
	}
	if n > 0 && p.Logger != nil {
		p.Logger.Debug("idempotency keys pruned", "count", n)
	}
}
