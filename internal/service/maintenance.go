package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sketchbook/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// RevisionPruner: trims page history on a cron schedule
// ─────────────────────────────────────────────────────────────

type RevisionPruner struct {
	store   domain.RevisionStore
	emitter EventEmitter
	logger  *slog.Logger

	mu        sync.Mutex
	keep      int
	schedule  string
	cronSched *cron.Cron
}

// NewRevisionPruner validates schedule and returns a pruner that keeps
// the newest keep revisions of every page. Start begins the schedule.
func NewRevisionPruner(store domain.RevisionStore, keep int, schedule string, emitter EventEmitter, logger *slog.Logger) (*RevisionPruner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return &RevisionPruner{
		store:    store,
		emitter:  emitter,
		logger:   logger.With("component", "pruner"),
		keep:     keep,
		schedule: schedule,
	}, nil
}

func (p *RevisionPruner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cronSched != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.PruneNow(ctx); err != nil {
			p.logger.Warn("scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	c.Start()
	p.cronSched = c
	p.logger.Info("revision pruning scheduled", "schedule", p.schedule, "keep", p.keep)
	return nil
}

// Stop halts the schedule and waits for a running prune until ctx is done.
func (p *RevisionPruner) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.cronSched
	p.cronSched = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// SetKeep changes how many revisions per page the next prune keeps.
func (p *RevisionPruner) SetKeep(keep int) {
	p.mu.Lock()
	p.keep = keep
	p.mu.Unlock()
}

func (p *RevisionPruner) PruneNow(ctx context.Context) (int64, error) {
	p.mu.Lock()
	keep := p.keep
	p.mu.Unlock()

	n, err := p.store.PruneRevisions(ctx, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned revisions", "removed", n, "keep", keep)
		if p.emitter != nil {
			p.emitter.Emit(ctx, "revisions:pruned", n)
		}
	}
	return n, nil
}
