package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trailtime/core/pkg/store"
)

// SchedulerWorkers bounds how many SyncUser runs execute concurrently,
// so a burst of enqueued users never overwhelms the provider's rate
// limit or Firestore write quota (spec USERS_PER_BATCH=5).
const SchedulerWorkers = 5

// StaleScanInterval is how often the scheduler looks for users who
// haven't synced in MinSyncIntervalHours and enqueues them.
const StaleScanInterval = 15 * time.Minute

// CrashRecoveryInterval is how often the scheduler sweeps for cursors
// stuck in_progress, clearing locks a crashed worker never released.
const CrashRecoveryInterval = 10 * time.Minute

// StuckInProgressAge is how old an in_progress cursor must be before
// the crash-recovery sweep clears its lock (spec §4.10).
const StuckInProgressAge = time.Hour

// Scheduler drives Pipeline.SyncUser across the user base: a bounded
// pool of workers drains a dedup FIFO queue, fed by an explicit Enqueue
// call (e.g. from a webhook or a connect flow) and by a periodic scan
// for stale cursors, with a separate sweep that recovers crashed locks.
type Scheduler struct {
	Pipeline *Pipeline
	Store    store.Store
	Logger   *slog.Logger

	queue  chan string
	mu     sync.Mutex
	queued map[string]bool
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler with a queue large enough to absorb a
// full stale-user scan without blocking the scanning goroutine.
func NewScheduler(pipeline *Pipeline, st store.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Pipeline: pipeline,
		Store:    st,
		Logger:   logger,
		queue:    make(chan string, 4096),
		queued:   map[string]bool{},
	}
}

// Enqueue adds userID to the sync queue unless it's already waiting.
// A user already mid-sync is still enqueueable; SyncUser's own
// in_progress check will make the resulting run a no-op.
func (s *Scheduler) Enqueue(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued[userID] {
		return
	}
	s.queued[userID] = true
	s.queue <- userID
}

func (s *Scheduler) dequeue(userID string) {
	s.mu.Lock()
	delete(s.queued, userID)
	s.mu.Unlock()
}

// Run starts the worker pool, the stale-user scanner, and the
// crash-recovery sweep. It blocks until ctx is cancelled, then waits
// for in-flight syncs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	for i := 0; i < SchedulerWorkers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	go s.scanStaleCursors(ctx)
	go s.sweepStuckCursors(ctx)

	<-ctx.Done()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case userID := <-s.queue:
			s.dequeue(userID)
			if _, err := s.Pipeline.SyncUser(ctx, userID, false); err != nil {
				s.Logger.Error("scheduler: sync failed", "user_id", userID, "error", err)
			}
		}
	}
}

func (s *Scheduler) scanStaleCursors(ctx context.Context) {
	ticker := time.NewTicker(StaleScanInterval)
	defer ticker.Stop()

	s.runStaleScan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runStaleScan(ctx)
		}
	}
}

func (s *Scheduler) runStaleScan(ctx context.Context) {
	cutoff := time.Now().Add(-MinSyncIntervalHours * time.Hour)
	stale, err := s.Store.ListStaleCursors(ctx, cutoff)
	if err != nil {
		s.Logger.Error("scheduler: stale cursor scan failed", "error", err)
		return
	}
	for _, c := range stale {
		s.Enqueue(c.UserID)
	}
	if len(stale) > 0 {
		s.Logger.Info("scheduler: enqueued stale users", "count", len(stale))
	}
}

func (s *Scheduler) sweepStuckCursors(ctx context.Context) {
	ticker := time.NewTicker(CrashRecoveryInterval)
	defer ticker.Stop()

	s.runStuckSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runStuckSweep(ctx)
		}
	}
}

func (s *Scheduler) runStuckSweep(ctx context.Context) {
	cutoff := time.Now().Add(-StuckInProgressAge)
	stuck, err := s.Store.ListStuckInProgress(ctx, cutoff)
	if err != nil {
		s.Logger.Error("scheduler: stuck-lock sweep failed", "error", err)
		return
	}
	for _, c := range stuck {
		c.InProgress = false
		if err := s.Store.SaveCursor(ctx, &c); err != nil {
			s.Logger.Error("scheduler: failed to clear stuck lock", "user_id", c.UserID, "error", err)
			continue
		}
		s.Logger.Warn("scheduler: cleared stuck in_progress lock", "user_id", c.UserID, "started_at", c.InProgressStartedAt)
	}
}
