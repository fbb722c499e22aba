// Package sync sequences one account's mail synchronization:
// token → fetch → dedup → persist → classify → analytics → watermark.
package sync

import (
	"context"
	"fmt"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/core/service/analytics"
	"mailsync_server/core/service/classify"
	"mailsync_server/core/service/fetch"
	"mailsync_server/core/service/token"
	"mailsync_server/pkg/logger"
)

type Orchestrator struct {
	accounts   domain.AccountRepository
	messages   domain.MessageRepository
	tokens     *token.Service
	fetcher    *fetch.Fetcher
	classifier *classify.Service
	engine     *analytics.Engine
	archive    out.BodyArchive
	lease      out.SyncLease

	pageLimit int
	now       func() time.Time
}

func NewOrchestrator(
	accounts domain.AccountRepository,
	messages domain.MessageRepository,
	tokens *token.Service,
	fetcher *fetch.Fetcher,
	classifier *classify.Service,
	engine *analytics.Engine,
	archive out.BodyArchive,
	lease out.SyncLease,
	pageLimit int,
) *Orchestrator {
	return &Orchestrator{
		accounts:   accounts,
		messages:   messages,
		tokens:     tokens,
		fetcher:    fetcher,
		classifier: classifier,
		engine:     engine,
		archive:    archive,
		lease:      lease,
		pageLimit:  pageLimit,
		now:        time.Now,
	}
}

// SyncAccount runs one full sync for the account. Idempotent: a rerun
// with no new remote mail inserts nothing. An invalidated token is not
// an error, the caller just observes no new mail. Overlapping calls for
// the same account are serialized by the lease: the loser returns
// immediately without syncing.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID int64) error {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	// A nil lease (no Redis) means runs are not serialized; dedup keeps
	// any overlap harmless.
	if o.lease != nil {
		acquired, err := o.lease.Acquire(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("failed to acquire sync lease for account %d: %w", account.ID, err)
		}
		if !acquired {
			logger.Info("[Orchestrator.SyncAccount] Account %d already syncing, skipping", account.ID)
			return nil
		}
		defer func() {
			if err := o.lease.Release(ctx, account.ID); err != nil {
				logger.Warn("[Orchestrator.SyncAccount] Failed to release sync lease for account %d: %v", account.ID, err)
			}
		}()
	}

	accessToken, ok := o.tokens.GetValidAccessToken(ctx, account)
	if !ok {
		logger.Warn("[Orchestrator.SyncAccount] Account %d requires re-authentication, sync skipped", account.ID)
		return nil
	}

	// Received and sent run in their own recoverable scopes: a sent-mail
	// failure never rolls back a committed received-mail sync.
	var receivedErr, sentErr error

	newReceived, receivedErr := o.syncKind(ctx, account, accessToken, domain.MessageReceived)
	if receivedErr != nil {
		logger.Error("[Orchestrator.SyncAccount] Received-mail sync failed for account %d: %v", account.ID, receivedErr)
	} else if len(newReceived) > 0 {
		// IDs are stable now; classifier failures are soft.
		o.classifier.ClassifyMessages(ctx, newReceived)
	}

	newSent, sentErr := o.syncKind(ctx, account, accessToken, domain.MessageSent)
	if sentErr != nil {
		logger.Error("[Orchestrator.SyncAccount] Sent-mail sync failed for account %d: %v", account.ID, sentErr)
	}

	o.notifyAnalytics(ctx, account, newReceived, newSent)

	if receivedErr != nil || sentErr != nil {
		// Watermark untouched so the next interval retries; dedup keeps
		// the rerun from double-inserting what already committed.
		return fmt.Errorf("sync incomplete for account %d: received=%v sent=%v", account.ID, receivedErr, sentErr)
	}

	now := o.now().UTC()
	if err := o.accounts.UpdateLastSyncAt(ctx, account.ID, now); err != nil {
		return fmt.Errorf("failed to update sync watermark for account %d: %w", account.ID, err)
	}

	logger.Info("[Orchestrator.SyncAccount] Account %d synced: %d received, %d sent", account.ID, len(newReceived), len(newSent))
	return nil
}

// SyncDueAccounts runs SyncAccount over every syncable account. One
// account's failure does not stop the sweep.
func (o *Orchestrator) SyncDueAccounts(ctx context.Context) error {
	accounts, err := o.accounts.ListSyncable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list syncable accounts: %w", err)
	}

	failures := 0
	for _, account := range accounts {
		if err := o.SyncAccount(ctx, account.ID); err != nil {
			logger.Error("[Orchestrator.SyncDueAccounts] Account %d: %v", account.ID, err)
			failures++
		}
	}

	logger.Info("[Orchestrator.SyncDueAccounts] Swept %d accounts, %d failed", len(accounts), failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d account syncs failed", failures, len(accounts))
	}
	return nil
}

// syncKind fetches one message kind, filters out messages already
// stored (by dedup key) and batch-inserts the complement. Returns the
// newly inserted messages with database-assigned IDs populated.
func (o *Orchestrator) syncKind(ctx context.Context, account *domain.MailAccount, accessToken string, kind domain.MessageKind) ([]*domain.Message, error) {
	var (
		fetched []*fetch.Fetched
		err     error
	)
	if kind == domain.MessageSent {
		fetched, err = o.fetcher.FetchSent(ctx, account, accessToken, o.pageLimit)
	} else {
		fetched, err = o.fetcher.FetchReceived(ctx, account, accessToken, o.pageLimit)
	}
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, nil
	}

	existing, err := o.messages.ListDedupKeys(ctx, account.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load dedup keys: %w", err)
	}

	var (
		newMessages []*domain.Message
		newFetched  []*fetch.Fetched
	)
	seen := make(map[string]struct{}, len(fetched))
	for _, f := range fetched {
		key := f.Message.DedupKey()
		if _, dup := existing[key]; dup {
			continue
		}
		// Also dedup within the fetched page itself.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		newMessages = append(newMessages, f.Message)
		newFetched = append(newFetched, f)
	}
	if len(newMessages) == 0 {
		logger.Debug("[Orchestrator.syncKind] No new %s messages for account %d", kind, account.ID)
		return nil, nil
	}

	if err := o.messages.CreateBatch(ctx, newMessages); err != nil {
		return nil, fmt.Errorf("failed to insert %d %s messages: %w", len(newMessages), kind, err)
	}

	o.persistAttachments(ctx, newMessages)
	o.archiveBodies(ctx, account, newFetched)

	return newMessages, nil
}

func (o *Orchestrator) persistAttachments(ctx context.Context, messages []*domain.Message) {
	var attachments []*domain.Attachment
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			att.MessageID = msg.ID
			attachments = append(attachments, att)
		}
	}
	if len(attachments) == 0 {
		return
	}
	if err := o.messages.CreateAttachments(ctx, attachments); err != nil {
		// Files are already on disk; only the rows are lost.
		logger.Error("[Orchestrator.persistAttachments] Failed to insert %d attachment rows: %v", len(attachments), err)
	}
}

// archiveBodies stores the raw HTML bodies out-of-band, best effort.
func (o *Orchestrator) archiveBodies(ctx context.Context, account *domain.MailAccount, fetched []*fetch.Fetched) {
	if o.archive == nil {
		return
	}
	for _, f := range fetched {
		if f.RawHTML == "" {
			continue
		}
		doc := &out.BodyDocument{
			MessageID:  f.Message.ID,
			AccountID:  account.ID,
			ExternalID: f.ExternalID,
			HTML:       f.RawHTML,
			Text:       f.Message.Body,
			FetchedAt:  o.now().UTC(),
		}
		if err := o.archive.SaveBody(ctx, doc); err != nil {
			logger.Warn("[Orchestrator.archiveBodies] Failed to archive body for message %d: %v", f.Message.ID, err)
		}
	}
}

// notifyAnalytics feeds the new messages' dates to the analytics engine
// as historical events. Failures never fail the sync.
func (o *Orchestrator) notifyAnalytics(ctx context.Context, account *domain.MailAccount, received, sent []*domain.Message) {
	if len(received)+len(sent) == 0 {
		return
	}

	receivedAt := make([]time.Time, 0, len(received))
	for _, msg := range received {
		receivedAt = append(receivedAt, msg.OccurredAt)
	}
	sentAt := make([]time.Time, 0, len(sent))
	for _, msg := range sent {
		sentAt = append(sentAt, msg.OccurredAt)
	}

	if err := o.engine.ProcessHistoricalEmails(ctx, account.UserID, receivedAt, sentAt); err != nil {
		logger.Warn("[Orchestrator.notifyAnalytics] Analytics update failed for user %s: %v", account.UserID, err)
	}
}
