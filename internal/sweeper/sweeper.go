// Package sweeper runs the periodic tombstone-expiry job spec.md §4.3
// describes ("a periodic job deletes expired rows"), as a background
// goroutine under a ticker — the same cancel-then-wait shutdown shape the
// teacher's internal/sync package uses for its orchestrator run loop and
// worker pool (a context.CancelFunc paired with a WaitGroup/done channel).
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskmaster/syncserver/internal/store"
)

// Sweeper periodically deletes expired tombstone rows across every
// organization.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Sweeper. interval is how often the sweep runs; it does not
// run until Start is called.
func New(st *store.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: st, interval: interval, logger: logger}
}

// Start launches the background ticker goroutine. Stop must be called to
// shut it down cleanly.
func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := s.RunOnce(runCtx); err != nil {
					s.logger.Error("sweeper: sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the background goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce performs one sweep pass, deleting every tombstone row whose
// expires_at has passed. Exposed standalone for the `sweep-tombstones` CLI
// command (SPEC_FULL.md §5.4), which runs this without starting the ticker.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	n, err := s.store.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("sweeper: expired tombstones removed", "count", n)
	}
	return nil
}
