package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailsync_server/core/domain"

	"github.com/google/uuid"
)

type fakeAccountRepo struct {
	domain.AccountRepository
	syncable []*domain.MailAccount
	err      error
}

func (r *fakeAccountRepo) ListSyncable(ctx context.Context) ([]*domain.MailAccount, error) {
	return r.syncable, r.err
}

type fakeProducer struct {
	published []int64
	err       error
}

func (p *fakeProducer) PublishAccountSync(ctx context.Context, accountID int64, userID uuid.UUID) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, accountID)
	return "job-1", nil
}

func TestNewSyncScheduler_Interval(t *testing.T) {
	repo := &fakeAccountRepo{}
	producer := &fakeProducer{}

	s := NewSyncScheduler(repo, producer, 7*time.Minute)
	if s.checkInterval != 7*time.Minute {
		t.Errorf("expected configured interval, got %v", s.checkInterval)
	}

	s = NewSyncScheduler(repo, producer, 0)
	if s.checkInterval != SyncSchedulerInterval {
		t.Errorf("expected default interval, got %v", s.checkInterval)
	}
}

func TestEnqueueDueAccounts(t *testing.T) {
	repo := &fakeAccountRepo{syncable: []*domain.MailAccount{
		{ID: 1, UserID: uuid.New()},
		{ID: 2, UserID: uuid.New()},
	}}
	producer := &fakeProducer{}

	s := NewSyncScheduler(repo, producer, time.Minute)
	s.enqueueDueAccounts()

	if len(producer.published) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(producer.published))
	}
	if producer.published[0] != 1 || producer.published[1] != 2 {
		t.Errorf("unexpected account ids: %v", producer.published)
	}
}

func TestEnqueueDueAccounts_ListFailure(t *testing.T) {
	repo := &fakeAccountRepo{err: errors.New("db down")}
	producer := &fakeProducer{}

	s := NewSyncScheduler(repo, producer, time.Minute)
	s.enqueueDueAccounts()

	if len(producer.published) != 0 {
		t.Errorf("nothing should be published when the listing fails, got %d", len(producer.published))
	}
}
