package analytics

import (
	"context"
	"testing"
	"time"

	"mailsync_server/core/domain"

	"github.com/google/uuid"
)

type fakeRepo struct {
	record    *domain.Analytics
	updates   int
	creates   int
	updateErr error
}

func (r *fakeRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Analytics, error) {
	if r.record == nil {
		return nil, domain.ErrNotFound
	}
	return r.record, nil
}

func (r *fakeRepo) Create(ctx context.Context, a *domain.Analytics) error {
	r.creates++
	a.ID = 1
	r.record = a
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, a *domain.Analytics) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates++
	a.Version++
	r.record = a
	return nil
}

// Wednesday 2026-08-26 10:00 UTC.
var baseTime = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

func newTestEngine(repo *fakeRepo, at time.Time) *Engine {
	e := NewEngine(repo)
	e.now = func() time.Time { return at }
	return e
}

func (e *Engine) setNow(at time.Time) { e.now = func() time.Time { return at } }

func existingRecord(userID uuid.UUID) *domain.Analytics {
	return &domain.Analytics{
		ID:                1,
		UserID:            userID,
		LastDailyResetAt:  dayStart(baseTime),
		LastWeeklyResetAt: weekStart(baseTime),
	}
}

func TestGetAnalytics_CreatesOnFirstAccess(t *testing.T) {
	repo := &fakeRepo{}
	e := newTestEngine(repo, baseTime)
	userID := uuid.New()

	record, err := e.GetAnalytics(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.creates != 1 {
		t.Errorf("expected one creation, got %d", repo.creates)
	}
	if !record.LastDailyResetAt.Equal(dayStart(baseTime)) {
		t.Errorf("daily reset anchor wrong: %v", record.LastDailyResetAt)
	}
	if !record.LastWeeklyResetAt.Equal(weekStart(baseTime)) {
		t.Errorf("weekly reset anchor wrong: %v", record.LastWeeklyResetAt)
	}

	// Second access must not create again.
	if _, err := e.GetAnalytics(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.creates != 1 {
		t.Errorf("creation must be idempotent, got %d creates", repo.creates)
	}
}

func TestDailyReset_ArchivesAndAdvancesStreak(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	record.TimeSpentToday = 45
	record.IsActiveToday = true
	record.CurrentStreak = 3
	record.LongestStreak = 3
	record.TotalActiveDays = 4
	record.TotalTimeSpent = 400

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime.AddDate(0, 0, 1)) // next day

	got, err := e.GetAnalytics(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.TimeSpentYesterday != 45 {
		t.Errorf("yesterday = %d, expected 45", got.TimeSpentYesterday)
	}
	if got.TimeSpentToday != 0 || got.IsActiveToday {
		t.Error("today tier not cleared")
	}
	if got.CurrentStreak != 4 {
		t.Errorf("streak = %d, expected 4", got.CurrentStreak)
	}
	if got.LongestStreak != 4 {
		t.Errorf("longest streak = %d, expected 4", got.LongestStreak)
	}
	if got.TotalActiveDays != 5 || got.TotalTimeSpent != 445 {
		t.Errorf("lifetime tier wrong: days=%d time=%d", got.TotalActiveDays, got.TotalTimeSpent)
	}
	wantAvg := 445.0 / 5
	if got.AvgTimePerActiveDay != wantAvg {
		t.Errorf("avg = %f, expected %f", got.AvgTimePerActiveDay, wantAvg)
	}
}

func TestDailyReset_AtMostOncePerDay(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	record.TimeSpentToday = 45
	record.IsActiveToday = true

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime.AddDate(0, 0, 1))

	e.GetAnalytics(context.Background(), userID)
	first := repo.record.TimeSpentYesterday

	e.setNow(baseTime.AddDate(0, 0, 1).Add(2 * time.Hour))
	e.GetAnalytics(context.Background(), userID)

	if repo.record.TimeSpentYesterday != first {
		t.Error("second access on the same day must not reset again")
	}
	if repo.updates != 1 {
		t.Errorf("expected exactly one persisted reset, got %d updates", repo.updates)
	}
}

func TestDailyReset_GapRestartsStreak(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	record.IsActiveToday = true
	record.CurrentStreak = 5
	record.LongestStreak = 5

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime.AddDate(0, 0, 3)) // skipped two days

	got, _ := e.GetAnalytics(context.Background(), userID)
	if got.CurrentStreak != 1 {
		t.Errorf("streak after gap = %d, expected restart at 1", got.CurrentStreak)
	}
	if got.LongestStreak != 5 {
		t.Errorf("longest streak must not decrease, got %d", got.LongestStreak)
	}
}

func TestDailyReset_InactiveDayZeroesStreak(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	record.IsActiveToday = false
	record.CurrentStreak = 5
	record.LongestStreak = 7
	record.TotalActiveDays = 10
	record.TotalTimeSpent = 1000

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime.AddDate(0, 0, 1))

	got, _ := e.GetAnalytics(context.Background(), userID)
	if got.CurrentStreak != 0 {
		t.Errorf("streak = %d, expected 0 after inactive day", got.CurrentStreak)
	}
	if got.TotalActiveDays != 10 || got.TotalTimeSpent != 1000 {
		t.Error("inactive day must not roll into lifetime totals")
	}
}

func TestWeeklyReset_ArchivesExactValues(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	record.WeekTimeSpent = 700
	record.WeekEmailsReceived = 20
	record.WeekEmailsSent = 8
	record.WeekEmailsRead = 15
	record.WeekEmailsDeleted = 3
	record.WeekEmailsSpam = 2

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime.AddDate(0, 0, 7)) // next Wednesday

	got, _ := e.GetAnalytics(context.Background(), userID)

	if got.LastWeekTimeSpent != 700 || got.LastWeekEmailsReceived != 20 ||
		got.LastWeekEmailsSent != 8 || got.LastWeekEmailsRead != 15 ||
		got.LastWeekEmailsDeleted != 3 || got.LastWeekEmailsSpam != 2 {
		t.Error("last-week fields must equal pre-reset this-week values")
	}
	if got.WeekTimeSpent != 0 || got.WeekEmailsReceived != 0 || got.WeekEmailsSent != 0 ||
		got.WeekEmailsRead != 0 || got.WeekEmailsDeleted != 0 || got.WeekEmailsSpam != 0 {
		t.Error("this-week fields must be zero after reset")
	}
	if got.LastWeekAvgTimePerDay != 100 {
		t.Errorf("avg time/day = %f, expected 100", got.LastWeekAvgTimePerDay)
	}
	if got.LastWeekAvgEmailsPerDay != 4 {
		t.Errorf("avg emails/day = %f, expected (20+8)/7 = 4", got.LastWeekAvgEmailsPerDay)
	}
	if !got.LastWeeklyResetAt.Equal(weekStart(baseTime.AddDate(0, 0, 7))) {
		t.Errorf("weekly anchor = %v", got.LastWeeklyResetAt)
	}
}

func TestHeartbeat_AccumulatesElapsed(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	seen := baseTime.Add(-5 * time.Minute)
	record.LastSeenAt = &seen

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime)

	if err := e.UpdateTimeSpent(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.record.TimeSpentToday != 300 {
		t.Errorf("today = %d, expected 300s", repo.record.TimeSpentToday)
	}
	if repo.record.WeekTimeSpent != 300 {
		t.Errorf("week = %d, expected 300s", repo.record.WeekTimeSpent)
	}
	if !repo.record.IsActiveToday {
		t.Error("heartbeat must mark the user active")
	}
	if repo.record.LastSeenAt == nil || !repo.record.LastSeenAt.Equal(baseTime) {
		t.Errorf("last seen = %v, expected %v", repo.record.LastSeenAt, baseTime)
	}
}

func TestHeartbeat_ClampsRunawaySession(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	seen := baseTime.Add(-3 * time.Hour)
	record.LastSeenAt = &seen

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, baseTime)

	e.UpdateTimeSpent(context.Background(), userID)

	if repo.record.TimeSpentToday != 1800 {
		t.Errorf("today = %d, expected clamp to 1800s", repo.record.TimeSpentToday)
	}
}

func TestHeartbeat_ClipsToMidnightAfterDailyReset(t *testing.T) {
	userID := uuid.New()
	record := existingRecord(userID)
	// Last seen 23:50 yesterday; heartbeat at 00:10 today.
	seen := dayStart(baseTime).Add(-18 * time.Minute)
	record.LastSeenAt = &seen
	record.LastDailyResetAt = dayStart(baseTime).AddDate(0, 0, -1)

	repo := &fakeRepo{record: record}
	e := newTestEngine(repo, dayStart(baseTime).Add(10*time.Minute))

	e.UpdateTimeSpent(context.Background(), userID)

	// Only the 10 minutes since midnight count, not the full 28.
	if repo.record.TimeSpentToday != 600 {
		t.Errorf("today = %d, expected 600s clipped at midnight", repo.record.TimeSpentToday)
	}
}

func TestHeartbeat_FirstEverContributesNothing(t *testing.T) {
	repo := &fakeRepo{}
	e := newTestEngine(repo, baseTime)
	userID := uuid.New()

	e.UpdateTimeSpent(context.Background(), userID)

	if repo.record.TimeSpentToday != 0 {
		t.Errorf("today = %d, expected 0 before a prior heartbeat exists", repo.record.TimeSpentToday)
	}
	if repo.record.LastSeenAt == nil {
		t.Error("first heartbeat must record last seen")
	}
}

func TestLiveCounters(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name  string
		fire  func(e *Engine) error
		check func(a *domain.Analytics) int
	}{
		{"received", func(e *Engine) error { return e.OnEmailReceivedToday(context.Background(), userID) },
			func(a *domain.Analytics) int { return a.WeekEmailsReceived }},
		{"sent", func(e *Engine) error { return e.OnEmailSentToday(context.Background(), userID) },
			func(a *domain.Analytics) int { return a.WeekEmailsSent }},
		{"read", func(e *Engine) error { return e.OnEmailReadToday(context.Background(), userID) },
			func(a *domain.Analytics) int { return a.WeekEmailsRead }},
		{"deleted", func(e *Engine) error { return e.OnEmailDeletedToday(context.Background(), userID) },
			func(a *domain.Analytics) int { return a.WeekEmailsDeleted }},
		{"spam", func(e *Engine) error { return e.OnEmailMarkedSpamToday(context.Background(), userID) },
			func(a *domain.Analytics) int { return a.WeekEmailsSpam }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{record: existingRecord(userID)}
			e := newTestEngine(repo, baseTime)

			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := tt.check(repo.record); got != 1 {
				t.Errorf("counter = %d, expected 1", got)
			}
			if !repo.record.IsActiveToday {
				t.Error("live event must mark the user active")
			}
		})
	}
}

func TestProcessHistoricalEmails_CurrentWeekOnly(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepo{record: existingRecord(userID)}
	e := newTestEngine(repo, baseTime)

	thisWeek := weekStart(baseTime).Add(24 * time.Hour)
	lastWeek := weekStart(baseTime).Add(-24 * time.Hour)

	err := e.ProcessHistoricalEmails(context.Background(), userID,
		[]time.Time{thisWeek, lastWeek, baseTime},
		[]time.Time{thisWeek, lastWeek})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.record.WeekEmailsReceived != 2 {
		t.Errorf("received = %d, expected 2 (current week only)", repo.record.WeekEmailsReceived)
	}
	if repo.record.WeekEmailsSent != 1 {
		t.Errorf("sent = %d, expected 1", repo.record.WeekEmailsSent)
	}
	if repo.record.IsActiveToday {
		t.Error("historical ingestion must not mark the user active")
	}
}

func TestSave_VersionConflictDropped(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepo{record: existingRecord(userID), updateErr: domain.ErrVersionConflict}
	e := newTestEngine(repo, baseTime)

	// Conflict must not surface as an error.
	if err := e.OnEmailReceivedToday(context.Background(), userID); err != nil {
		t.Errorf("version conflict must be swallowed, got %v", err)
	}
}

func TestSpamRate_DerivedOnRead(t *testing.T) {
	a := &domain.Analytics{WeekEmailsReceived: 10, WeekEmailsSpam: 3}
	if got := a.SpamRate(); got != 0.3 {
		t.Errorf("spam rate = %f, expected 0.3", got)
	}
	empty := &domain.Analytics{}
	if got := empty.SpamRate(); got != 0 {
		t.Errorf("spam rate with zero received = %f, expected 0", got)
	}
}

func TestWeekStart_Monday(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"wednesday", baseTime, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{"monday itself", time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := weekStart(tt.in); !got.Equal(tt.want) {
				t.Errorf("weekStart(%v) = %v, expected %v", tt.in, got, tt.want)
			}
		})
	}
}
