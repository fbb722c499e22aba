package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by AnalyticsRepository.Update when the
// row was modified since it was read. Callers log and drop the update.
var ErrVersionConflict = errors.New("analytics version conflict")

// Analytics is the per-user activity record. One row per user, mutated
// only through the analytics engine. Fields fall into three temporal
// tiers: today, this week and lifetime.
type Analytics struct {
	ID     int64     `json:"id" db:"id"`
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// Today tier, reset on the daily tick (UTC calendar date).
	TimeSpentToday   int64      `json:"time_spent_today_sec" db:"time_spent_today_sec"`
	IsActiveToday    bool       `json:"is_active_today" db:"is_active_today"`
	LastDailyResetAt time.Time  `json:"last_daily_reset_at" db:"last_daily_reset_at"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`

	// Archived previous day.
	TimeSpentYesterday int64 `json:"time_spent_yesterday_sec" db:"time_spent_yesterday_sec"`

	// This-week tier, reset on the weekly tick (week starts Monday, UTC).
	WeekTimeSpent      int64     `json:"week_time_spent_sec" db:"week_time_spent_sec"`
	WeekEmailsReceived int       `json:"week_emails_received" db:"week_emails_received"`
	WeekEmailsSent     int       `json:"week_emails_sent" db:"week_emails_sent"`
	WeekEmailsRead     int       `json:"week_emails_read" db:"week_emails_read"`
	WeekEmailsDeleted  int       `json:"week_emails_deleted" db:"week_emails_deleted"`
	WeekEmailsSpam     int       `json:"week_emails_spam" db:"week_emails_spam"`
	LastWeeklyResetAt  time.Time `json:"last_weekly_reset_at" db:"last_weekly_reset_at"`

	// Archived previous week.
	LastWeekTimeSpent       int64   `json:"last_week_time_spent_sec" db:"last_week_time_spent_sec"`
	LastWeekEmailsReceived  int     `json:"last_week_emails_received" db:"last_week_emails_received"`
	LastWeekEmailsSent      int     `json:"last_week_emails_sent" db:"last_week_emails_sent"`
	LastWeekEmailsRead      int     `json:"last_week_emails_read" db:"last_week_emails_read"`
	LastWeekEmailsDeleted   int     `json:"last_week_emails_deleted" db:"last_week_emails_deleted"`
	LastWeekEmailsSpam      int     `json:"last_week_emails_spam" db:"last_week_emails_spam"`
	LastWeekAvgTimePerDay   float64 `json:"last_week_avg_time_per_day_sec" db:"last_week_avg_time_per_day_sec"`
	LastWeekAvgEmailsPerDay float64 `json:"last_week_avg_emails_per_day" db:"last_week_avg_emails_per_day"`

	// Lifetime tier.
	TotalTimeSpent      int64   `json:"total_time_spent_sec" db:"total_time_spent_sec"`
	TotalActiveDays     int     `json:"total_active_days" db:"total_active_days"`
	AvgTimePerActiveDay float64 `json:"avg_time_per_active_day_sec" db:"avg_time_per_active_day_sec"`
	CurrentStreak       int     `json:"current_streak" db:"current_streak"`
	LongestStreak       int     `json:"longest_streak" db:"longest_streak"`

	// Optimistic concurrency token; bumped on every persisted update.
	Version int64 `json:"-" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SpamRate is derived on read and never persisted.
func (a *Analytics) SpamRate() float64 {
	if a.WeekEmailsReceived == 0 {
		return 0
	}
	return float64(a.WeekEmailsSpam) / float64(a.WeekEmailsReceived)
}

type AnalyticsRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Analytics, error)
	// Create inserts the row only if none exists for the user yet.
	Create(ctx context.Context, analytics *Analytics) error
	// Update persists the record iff the stored version still matches
	// analytics.Version; on success the version is bumped in place.
	// Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, analytics *Analytics) error
}
