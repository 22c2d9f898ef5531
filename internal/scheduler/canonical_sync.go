// Package scheduler runs the periodic reconciliation sweep: provisional
// canonical records are fed back through the task queue so books imported
// while the catalog provider was unreachable eventually get verified
// identities.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

// CanonicalSyncScheduler periodically enqueues resolve_book tasks for
// unverified canonical records.
type CanonicalSyncScheduler struct {
	repo       *canonical.Repository
	taskClient *tasks.Client
	schedule   string
	batchSize  int

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSweeping bool
	cancelFunc context.CancelFunc
}

// NewCanonicalSyncScheduler creates a new scheduler instance. schedule is a
// standard five-field cron expression; batchSize caps how many provisional
// records one sweep enqueues.
func NewCanonicalSyncScheduler(repo *canonical.Repository, taskClient *tasks.Client, schedule string, batchSize int) *CanonicalSyncScheduler {
	return &CanonicalSyncScheduler{
		repo:       repo,
		taskClient: taskClient,
		schedule:   schedule,
		batchSize:  batchSize,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler.
func (s *CanonicalSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.schedule == "" {
		log.Printf("Canonical sync scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Canonical sync scheduler: started with schedule '%s'", s.schedule)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler.
func (s *CanonicalSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Canonical sync scheduler: stopped")
}

// RunNow triggers an immediate sweep.
func (s *CanonicalSyncScheduler) RunNow() {
	go s.runSweep()
}

// IsRunning returns whether the scheduler is active.
func (s *CanonicalSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sweep will occur.
func (s *CanonicalSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runSweep enqueues one resolve task per provisional record, up to the batch
// size. Overlapping sweeps are skipped rather than queued.
func (s *CanonicalSyncScheduler) runSweep() {
	s.mu.Lock()
	if s.isSweeping {
		s.mu.Unlock()
		log.Printf("Canonical sync: skipped (sweep already in progress)")
		return
	}
	s.isSweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSweeping = false
		s.mu.Unlock()
	}()

	records, err := s.repo.ListProvisional(s.batchSize)
	if err != nil {
		log.Printf("Canonical sync: listing provisional records failed: %v", err)
		return
	}
	if len(records) == 0 {
		log.Printf("Canonical sync: nothing to reconcile")
		return
	}

	enqueued := 0
	for _, record := range records {
		if _, err := s.taskClient.Add(tasks.ResolveBookTask{CanonicalID: record.ID}).Save(); err != nil {
			log.Printf("Canonical sync: enqueueing canonical %d failed: %v", record.ID, err)
			continue
		}
		enqueued++
	}

	log.Printf("Canonical sync: enqueued %d of %d provisional records", enqueued, len(records))
}
