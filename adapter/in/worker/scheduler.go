package worker

import (
	"context"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// SyncScheduler - periodic account sweep
// =============================================================================
//
// Finds accounts whose tokens are still valid and enqueues a sync job
// for each on a fixed interval. The per-account lease keeps a slow run
// from overlapping with the next tick, so the scheduler itself stays
// fire-and-forget.

const (
	SyncSchedulerInterval = 5 * time.Minute
	SyncSchedulerStartup  = 30 * time.Second
)

type SyncScheduler struct {
	accountRepo   domain.AccountRepository
	producer      out.SyncJobProducer
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewSyncScheduler creates a new sync scheduler. A non-positive
// interval falls back to the default.
func NewSyncScheduler(accountRepo domain.AccountRepository, producer out.SyncJobProducer, interval time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = SyncSchedulerInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		accountRepo:   accountRepo,
		producer:      producer,
		checkInterval: interval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the scheduler.
func (s *SyncScheduler) Start() {
	logger.Info("[SyncScheduler] Starting...")
	go s.run()
}

// Stop stops the scheduler.
func (s *SyncScheduler) Stop() {
	logger.Info("[SyncScheduler] Stopping...")
	s.cancel()
}

// run is the main loop.
func (s *SyncScheduler) run() {
	// Let the rest of the process come up first.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(SyncSchedulerStartup):
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.enqueueDueAccounts()
	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[SyncScheduler] Stopped")
			return
		case <-ticker.C:
			s.enqueueDueAccounts()
		}
	}
}

// enqueueDueAccounts publishes one sync job per syncable account.
func (s *SyncScheduler) enqueueDueAccounts() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	accounts, err := s.accountRepo.ListSyncable(ctx)
	if err != nil {
		logger.Error("[SyncScheduler] Failed to list syncable accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	published := 0
	for _, account := range accounts {
		if _, err := s.producer.PublishAccountSync(ctx, account.ID, account.UserID); err != nil {
			logger.Error("[SyncScheduler] Failed to publish sync job for account %d: %v", account.ID, err)
			continue
		}
		published++
	}

	logger.Info("[SyncScheduler] Enqueued %d of %d syncable accounts", published, len(accounts))
}
