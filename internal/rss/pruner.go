package rss

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SnapshotPruner deletes feed snapshots stored before a cutoff.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// Pruner periodically removes expired feed snapshots.
type Pruner struct {
	store    SnapshotPruner
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPruner creates a background pruner.
func NewPruner(store SnapshotPruner, ttl, interval time.Duration) *Pruner {
	return &Pruner{
		store:    store,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the pruning loop.
func (p *Pruner) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			p.PruneOnce()

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// PruneOnce runs a single pruning pass.
func (p *Pruner) PruneOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := p.store.PruneSnapshots(ctx, time.Now().Add(-p.ttl))
	if err != nil {
		slog.Warn("snapshot prune failed", slog.Any("err", err))
		return
	}
	if deleted > 0 {
		slog.Info("pruned feed snapshots", slog.Int64("deleted", deleted))
	}
}

// Stop stops the pruner gracefully.
func (p *Pruner) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
