package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mailsync_server/core/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// =============================================================================
// Message Adapter (PostgreSQL)
// =============================================================================

type MessageAdapter struct {
	db *sqlx.DB
}

var _ domain.MessageRepository = (*MessageAdapter)(nil)

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

const messageSelectColumns = `
	id, account_id, kind, subject, body, occurred_at,
	sender_name, sender_address, is_read, recipients,
	is_favorite, is_spam, is_deleted, created_at, updated_at`

type messageRow struct {
	ID        int64  `db:"id"`
	AccountID int64  `db:"account_id"`
	Kind      string `db:"kind"`

	Subject    string    `db:"subject"`
	Body       string    `db:"body"`
	OccurredAt time.Time `db:"occurred_at"`

	SenderName    sql.NullString `db:"sender_name"`
	SenderAddress sql.NullString `db:"sender_address"`
	IsRead        bool           `db:"is_read"`
	Recipients    pq.StringArray `db:"recipients"`

	IsFavorite bool `db:"is_favorite"`
	IsSpam     bool `db:"is_spam"`
	IsDeleted  bool `db:"is_deleted"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Kind:          domain.MessageKind(r.Kind),
		Subject:       r.Subject,
		Body:          r.Body,
		OccurredAt:    r.OccurredAt.UTC(),
		SenderName:    r.SenderName.String,
		SenderAddress: r.SenderAddress.String,
		IsRead:        r.IsRead,
		Recipients:    r.Recipients,
		IsFavorite:    r.IsFavorite,
		IsSpam:        r.IsSpam,
		IsDeleted:     r.IsDeleted,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// =============================================================================
// CRUD Operations
// =============================================================================

func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var row messageRow
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1`, messageSelectColumns)
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toDomain(), nil
}

func (a *MessageAdapter) ListByAccount(ctx context.Context, accountID int64, kind domain.MessageKind, limit, offset int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE account_id = $1 AND kind = $2 AND is_deleted = false
		ORDER BY occurred_at DESC
		LIMIT $3 OFFSET $4`, messageSelectColumns)

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, accountID, kind, limit, offset); err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toDomain())
	}
	return messages, nil
}

// ListDedupKeys loads only the three dedup-key columns, not whole rows;
// an account with years of mail stays cheap to key-scan.
func (a *MessageAdapter) ListDedupKeys(ctx context.Context, accountID int64, kind domain.MessageKind) (map[string]struct{}, error) {
	rows, err := a.db.QueryxContext(ctx,
		`SELECT subject, occurred_at, sender_address FROM messages WHERE account_id = $1 AND kind = $2`,
		accountID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var (
			subject    string
			occurredAt time.Time
			sender     sql.NullString
		)
		if err := rows.Scan(&subject, &occurredAt, &sender); err != nil {
			return nil, err
		}
		keys[domain.DedupKey(subject, occurredAt, sender.String)] = struct{}{}
	}
	return keys, rows.Err()
}

// CreateBatch inserts all messages inside one transaction and populates
// each message's database-assigned ID before returning.
func (a *MessageAdapter) CreateBatch(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO messages (
			account_id, kind, subject, body, occurred_at,
			sender_name, sender_address, is_read, recipients,
			is_favorite, is_spam, is_deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	for _, msg := range messages {
		err := tx.QueryRowxContext(ctx, query,
			msg.AccountID, msg.Kind, msg.Subject, msg.Body, msg.OccurredAt,
			nullStr(msg.SenderName), nullStr(msg.SenderAddress), msg.IsRead, pq.Array(msg.Recipients),
			msg.IsFavorite, msg.IsSpam, msg.IsDeleted,
		).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message %q: %w", msg.Subject, err)
		}
	}

	return tx.Commit()
}

func (a *MessageAdapter) CreateAttachments(ctx context.Context, attachments []*domain.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO attachments (message_id, file_name, stored_path, mime_type, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	for _, att := range attachments {
		if err := tx.QueryRowxContext(ctx, query,
			att.MessageID, att.FileName, att.StoredPath, att.MimeType, att.Size,
		).Scan(&att.ID); err != nil {
			return fmt.Errorf("failed to insert attachment %q: %w", att.FileName, err)
		}
	}

	return tx.Commit()
}

func (a *MessageAdapter) SetSpam(ctx context.Context, messageID int64, spam bool) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE messages SET is_spam = $1, updated_at = NOW() WHERE id = $2`, spam, messageID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *MessageAdapter) Update(ctx context.Context, msg *domain.Message) error {
	query := `
		UPDATE messages SET
			subject = $1, body = $2, is_read = $3,
			is_favorite = $4, is_spam = $5, is_deleted = $6,
			updated_at = NOW()
		WHERE id = $7`

	result, err := a.db.ExecContext(ctx, query,
		msg.Subject, msg.Body, msg.IsRead,
		msg.IsFavorite, msg.IsSpam, msg.IsDeleted, msg.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *MessageAdapter) CountByAccount(ctx context.Context, accountID int64, kind domain.MessageKind) (int, error) {
	var count int
	err := a.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE account_id = $1 AND kind = $2 AND is_deleted = false`,
		accountID, kind)
	return count, err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
