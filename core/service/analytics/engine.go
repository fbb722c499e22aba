// Package analytics maintains per-user activity counters, reset
// transitions and streak bookkeeping.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/logger"

	"github.com/google/uuid"
)

// maxSessionContribution bounds a single heartbeat's elapsed window so
// an idle tab left open overnight cannot inflate time-spent.
const maxSessionContribution = 30 * time.Minute

// Engine is the single writer of Analytics records. Both reset clocks
// (daily and weekly) are evaluated lazily on every entry point; there is
// no background scheduler. A version conflict on save is logged and the
// update dropped, acceptable for best-effort counters under low
// contention.
type Engine struct {
	repo domain.AnalyticsRepository

	now func() time.Time
}

func NewEngine(repo domain.AnalyticsRepository) *Engine {
	return &Engine{
		repo: repo,
		now:  time.Now,
	}
}

// ============================================================
// Entry points
// ============================================================

// GetAnalytics returns the user's record with any pending reset
// transitions applied (and persisted if one occurred).
func (e *Engine) GetAnalytics(ctx context.Context, userID uuid.UUID) (*domain.Analytics, error) {
	now := e.now().UTC()

	record, err := e.load(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if changed, _ := e.applyResets(record, now); changed {
		e.save(ctx, record, now)
	}
	return record, nil
}

// UpdateTimeSpent is the heartbeat. It credits the elapsed time since
// the previous heartbeat to today's and this week's totals, clamped to
// a maximum single-session contribution. When a daily reset just fired
// and the previous heartbeat predates today, the window is clipped to
// start at midnight so yesterday's dead time is not attributed to today.
func (e *Engine) UpdateTimeSpent(ctx context.Context, userID uuid.UUID) error {
	now := e.now().UTC()

	record, err := e.load(ctx, userID, now)
	if err != nil {
		return err
	}

	prevSeen := record.LastSeenAt
	_, dailyReset := e.applyResets(record, now)

	var elapsed time.Duration
	if prevSeen != nil {
		start := prevSeen.UTC()
		if dailyReset && start.Before(dayStart(now)) {
			start = dayStart(now)
		}
		elapsed = now.Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > maxSessionContribution {
			elapsed = maxSessionContribution
		}
	}

	seconds := int64(elapsed / time.Second)
	record.TimeSpentToday += seconds
	record.WeekTimeSpent += seconds
	record.IsActiveToday = true
	seen := now
	record.LastSeenAt = &seen

	e.save(ctx, record, now)
	return nil
}

func (e *Engine) OnEmailReceivedToday(ctx context.Context, userID uuid.UUID) error {
	return e.bump(ctx, userID, func(a *domain.Analytics) { a.WeekEmailsReceived++ })
}

func (e *Engine) OnEmailSentToday(ctx context.Context, userID uuid.UUID) error {
	return e.bump(ctx, userID, func(a *domain.Analytics) { a.WeekEmailsSent++ })
}

func (e *Engine) OnEmailReadToday(ctx context.Context, userID uuid.UUID) error {
	return e.bump(ctx, userID, func(a *domain.Analytics) { a.WeekEmailsRead++ })
}

func (e *Engine) OnEmailDeletedToday(ctx context.Context, userID uuid.UUID) error {
	return e.bump(ctx, userID, func(a *domain.Analytics) { a.WeekEmailsDeleted++ })
}

func (e *Engine) OnEmailMarkedSpamToday(ctx context.Context, userID uuid.UUID) error {
	return e.bump(ctx, userID, func(a *domain.Analytics) { a.WeekEmailsSpam++ })
}

// ProcessHistoricalEmails ingests sync-discovered message dates. Only
// dates inside the current week window count; older mail is ignored so
// past weeks are never retroactively corrected. Does not mark the user
// active: syncing is not user presence.
func (e *Engine) ProcessHistoricalEmails(ctx context.Context, userID uuid.UUID, receivedAt, sentAt []time.Time) error {
	now := e.now().UTC()

	record, err := e.load(ctx, userID, now)
	if err != nil {
		return err
	}

	e.applyResets(record, now)

	start := weekStart(now)
	end := start.AddDate(0, 0, 7)
	counted := 0
	for _, ts := range receivedAt {
		if inWindow(ts.UTC(), start, end) {
			record.WeekEmailsReceived++
			counted++
		}
	}
	for _, ts := range sentAt {
		if inWindow(ts.UTC(), start, end) {
			record.WeekEmailsSent++
			counted++
		}
	}

	logger.Debug("[AnalyticsEngine.ProcessHistoricalEmails] User %s: counted %d/%d dates into current week",
		userID, counted, len(receivedAt)+len(sentAt))

	e.save(ctx, record, now)
	return nil
}

// ============================================================
// Reset transitions
// ============================================================

// applyResets runs the lazy weekly and daily transitions. Returns
// whether anything changed and whether the daily reset fired.
func (e *Engine) applyResets(a *domain.Analytics, now time.Time) (changed, daily bool) {
	if e.applyWeeklyReset(a, now) {
		changed = true
	}
	if e.applyDailyReset(a, now) {
		changed = true
		daily = true
	}
	return changed, daily
}

// applyWeeklyReset archives this week's counters into their last-week
// counterparts on the first access after the week boundary. When
// several weeks elapsed unseen, the intervening ones collapse: only the
// values accumulated since the last reset are archived.
func (e *Engine) applyWeeklyReset(a *domain.Analytics, now time.Time) bool {
	current := weekStart(now)
	if !current.After(weekStart(a.LastWeeklyResetAt)) {
		return false
	}

	if a.WeekTimeSpent > 0 || a.WeekEmailsReceived+a.WeekEmailsSent+a.WeekEmailsRead+a.WeekEmailsDeleted+a.WeekEmailsSpam > 0 {
		a.LastWeekAvgTimePerDay = float64(a.WeekTimeSpent) / 7
		a.LastWeekAvgEmailsPerDay = float64(a.WeekEmailsReceived+a.WeekEmailsSent) / 7
	} else {
		a.LastWeekAvgTimePerDay = 0
		a.LastWeekAvgEmailsPerDay = 0
	}

	a.LastWeekTimeSpent = a.WeekTimeSpent
	a.LastWeekEmailsReceived = a.WeekEmailsReceived
	a.LastWeekEmailsSent = a.WeekEmailsSent
	a.LastWeekEmailsRead = a.WeekEmailsRead
	a.LastWeekEmailsDeleted = a.WeekEmailsDeleted
	a.LastWeekEmailsSpam = a.WeekEmailsSpam

	a.WeekTimeSpent = 0
	a.WeekEmailsReceived = 0
	a.WeekEmailsSent = 0
	a.WeekEmailsRead = 0
	a.WeekEmailsDeleted = 0
	a.WeekEmailsSpam = 0
	a.LastWeeklyResetAt = current

	return true
}

// applyDailyReset archives today into yesterday on the first access of
// a new UTC calendar day, rolls active time into the lifetime tier and
// advances the streak. The streak extends only when the previous reset
// was exactly one day earlier; a gap restarts it.
func (e *Engine) applyDailyReset(a *domain.Analytics, now time.Time) bool {
	today := dayStart(now)
	lastResetDay := dayStart(a.LastDailyResetAt)
	if !today.After(lastResetDay) {
		return false
	}

	a.TimeSpentYesterday = a.TimeSpentToday

	if a.IsActiveToday {
		a.TotalActiveDays++
		a.TotalTimeSpent += a.TimeSpentToday
		a.AvgTimePerActiveDay = float64(a.TotalTimeSpent) / float64(a.TotalActiveDays)

		if today.Equal(lastResetDay.AddDate(0, 0, 1)) {
			a.CurrentStreak++
		} else {
			a.CurrentStreak = 1
		}
	} else {
		a.CurrentStreak = 0
	}
	if a.CurrentStreak > a.LongestStreak {
		a.LongestStreak = a.CurrentStreak
	}

	a.TimeSpentToday = 0
	a.IsActiveToday = false
	a.LastDailyResetAt = today

	return true
}

// ============================================================
// Internals
// ============================================================

func (e *Engine) bump(ctx context.Context, userID uuid.UUID, inc func(*domain.Analytics)) error {
	now := e.now().UTC()

	record, err := e.load(ctx, userID, now)
	if err != nil {
		return err
	}

	e.applyResets(record, now)
	inc(record)
	record.IsActiveToday = true

	e.save(ctx, record, now)
	return nil
}

// load fetches the user's record, creating it on first access. Creation
// is idempotent: a concurrent creator winning the race is fine, we
// re-read and use theirs.
func (e *Engine) load(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Analytics, error) {
	record, err := e.repo.GetByUserID(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load analytics for user %s: %w", userID, err)
	}

	record = &domain.Analytics{
		UserID:            userID,
		LastDailyResetAt:  dayStart(now),
		LastWeeklyResetAt: weekStart(now),
	}
	if err := e.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create analytics for user %s: %w", userID, err)
	}
	return record, nil
}

// save persists the record. A version conflict means another writer won
// the race; the update is dropped with a log line.
func (e *Engine) save(ctx context.Context, a *domain.Analytics, now time.Time) {
	a.UpdatedAt = now
	if err := e.repo.Update(ctx, a); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			logger.Warn("[AnalyticsEngine.save] Version conflict for user %s, dropping update", a.UserID)
			return
		}
		logger.Error("[AnalyticsEngine.save] Failed to persist analytics for user %s: %v", a.UserID, err)
	}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns Monday 00:00 UTC of t's week.
func weekStart(t time.Time) time.Time {
	day := dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
