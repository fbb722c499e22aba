package persistence

import (
	"context"
	"fmt"

	"mailsync_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Analytics Adapter (PostgreSQL)
// =============================================================================

// AnalyticsAdapter implements domain.AnalyticsRepository with a version
// column for optimistic concurrency: an update only lands when the row
// still carries the version it was read with.
type AnalyticsAdapter struct {
	db *sqlx.DB
}

var _ domain.AnalyticsRepository = (*AnalyticsAdapter)(nil)

func NewAnalyticsAdapter(db *sqlx.DB) *AnalyticsAdapter {
	return &AnalyticsAdapter{db: db}
}

const analyticsSelectColumns = `
	id, user_id,
	time_spent_today_sec, is_active_today, last_daily_reset_at, last_seen_at,
	time_spent_yesterday_sec,
	week_time_spent_sec, week_emails_received, week_emails_sent,
	week_emails_read, week_emails_deleted, week_emails_spam, last_weekly_reset_at,
	last_week_time_spent_sec, last_week_emails_received, last_week_emails_sent,
	last_week_emails_read, last_week_emails_deleted, last_week_emails_spam,
	last_week_avg_time_per_day_sec, last_week_avg_emails_per_day,
	total_time_spent_sec, total_active_days, avg_time_per_active_day_sec,
	current_streak, longest_streak,
	version, created_at, updated_at`

func (a *AnalyticsAdapter) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Analytics, error) {
	var record domain.Analytics
	query := fmt.Sprintf(`SELECT %s FROM user_analytics WHERE user_id = $1`, analyticsSelectColumns)
	if err := a.db.GetContext(ctx, &record, query, userID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &record, nil
}

// Create inserts the row only if the user has none yet. The idempotence
// lives in the unique constraint: a concurrent creation loses silently
// and the caller re-reads.
func (a *AnalyticsAdapter) Create(ctx context.Context, record *domain.Analytics) error {
	query := `
		INSERT INTO user_analytics (user_id, last_daily_reset_at, last_weekly_reset_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id, version, created_at, updated_at`

	err := a.db.QueryRowxContext(ctx, query,
		record.UserID, record.LastDailyResetAt, record.LastWeeklyResetAt,
	).Scan(&record.ID, &record.Version, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		// DO NOTHING yields no row when another writer won; use theirs.
		existing, getErr := a.GetByUserID(ctx, record.UserID)
		if getErr != nil {
			return fmt.Errorf("failed to create analytics for user %s: %w", record.UserID, err)
		}
		*record = *existing
	}
	return nil
}

// Update persists the record guarded by its version. Returns
// domain.ErrVersionConflict when another writer got there first.
func (a *AnalyticsAdapter) Update(ctx context.Context, record *domain.Analytics) error {
	query := `
		UPDATE user_analytics SET
			time_spent_today_sec = $1, is_active_today = $2, last_daily_reset_at = $3, last_seen_at = $4,
			time_spent_yesterday_sec = $5,
			week_time_spent_sec = $6, week_emails_received = $7, week_emails_sent = $8,
			week_emails_read = $9, week_emails_deleted = $10, week_emails_spam = $11,
			last_weekly_reset_at = $12,
			last_week_time_spent_sec = $13, last_week_emails_received = $14, last_week_emails_sent = $15,
			last_week_emails_read = $16, last_week_emails_deleted = $17, last_week_emails_spam = $18,
			last_week_avg_time_per_day_sec = $19, last_week_avg_emails_per_day = $20,
			total_time_spent_sec = $21, total_active_days = $22, avg_time_per_active_day_sec = $23,
			current_streak = $24, longest_streak = $25,
			version = version + 1, updated_at = NOW()
		WHERE id = $26 AND version = $27`

	result, err := a.db.ExecContext(ctx, query,
		record.TimeSpentToday, record.IsActiveToday, record.LastDailyResetAt, record.LastSeenAt,
		record.TimeSpentYesterday,
		record.WeekTimeSpent, record.WeekEmailsReceived, record.WeekEmailsSent,
		record.WeekEmailsRead, record.WeekEmailsDeleted, record.WeekEmailsSpam,
		record.LastWeeklyResetAt,
		record.LastWeekTimeSpent, record.LastWeekEmailsReceived, record.LastWeekEmailsSent,
		record.LastWeekEmailsRead, record.LastWeekEmailsDeleted, record.LastWeekEmailsSpam,
		record.LastWeekAvgTimePerDay, record.LastWeekAvgEmailsPerDay,
		record.TotalTimeSpent, record.TotalActiveDays, record.AvgTimePerActiveDay,
		record.CurrentStreak, record.LongestStreak,
		record.ID, record.Version,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	record.Version++
	return nil
}
