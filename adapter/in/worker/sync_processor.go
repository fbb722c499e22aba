package worker

import (
	"context"
	"fmt"

	"mailsync_server/core/service/sync"
	"mailsync_server/pkg/logger"
)

// SyncProcessor handles mail sync jobs.
type SyncProcessor struct {
	orchestrator *sync.Orchestrator
}

// NewSyncProcessor creates a new sync processor.
func NewSyncProcessor(orchestrator *sync.Orchestrator) *SyncProcessor {
	return &SyncProcessor{orchestrator: orchestrator}
}

// ProcessSync runs a full sync pass for one account.
func (p *SyncProcessor) ProcessSync(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[MailSyncPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.Info("[SyncProcessor.ProcessSync] account=%d, user=%s", payload.AccountID, payload.UserID)

	return p.orchestrator.SyncAccount(ctx, payload.AccountID)
}
