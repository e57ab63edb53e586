package scheduler

import (
	"context"
	"time"
)

// sweep periodically purges terminal job records older than the
// retention window. Store errors are logged and the loop keeps going;
// the loop exits when Stop cancels the scheduler context.
func (s *Scheduler) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			n, err := s.opts.Store.PurgeOlderThan(context.Background(), s.opts.RetentionWindow)
			if err != nil {
				s.log.Warn("retention sweep failed", "error", err)
				continue
			}
			s.dropPurgedFromMemory()
			if n > 0 {
				s.log.Info("purged old job records", "count", n)
			}
		}
	}
}

// dropPurgedFromMemory evicts in-memory terminal records past the
// retention window so the table does not grow unbounded when the store
// is disabled.
func (s *Scheduler) dropPurgedFromMemory() {
	cutoff := time.Now().Add(-s.opts.RetentionWindow)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
