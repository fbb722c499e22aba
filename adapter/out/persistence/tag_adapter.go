package persistence

import (
	"context"
	"fmt"

	"mailsync_server/core/domain"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Tag Adapter (PostgreSQL)
// =============================================================================

type TagAdapter struct {
	db *sqlx.DB
}

var _ domain.TagRepository = (*TagAdapter)(nil)

func NewTagAdapter(db *sqlx.DB) *TagAdapter {
	return &TagAdapter{db: db}
}

func (a *TagAdapter) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	var tag domain.Tag
	if err := a.db.GetContext(ctx, &tag,
		`SELECT id, name, kind FROM tags WHERE name = $1`, name); err != nil {
		return nil, wrapNotFound(err)
	}
	return &tag, nil
}

func (a *TagAdapter) ListSystem(ctx context.Context) ([]*domain.Tag, error) {
	var tags []*domain.Tag
	if err := a.db.SelectContext(ctx, &tags,
		`SELECT id, name, kind FROM tags WHERE kind = $1 ORDER BY name`, domain.TagSystem); err != nil {
		return nil, err
	}
	return tags, nil
}

// Create inserts the tag and populates its ID before returning. A
// concurrent creator of the same name wins via the unique constraint;
// we then return the existing row instead of failing.
func (a *TagAdapter) Create(ctx context.Context, tag *domain.Tag) error {
	query := `
		INSERT INTO tags (name, kind) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, kind`

	var kind string
	if err := a.db.QueryRowxContext(ctx, query, tag.Name, tag.Kind).Scan(&tag.ID, &kind); err != nil {
		return fmt.Errorf("failed to create tag %q: %w", tag.Name, err)
	}
	tag.Kind = domain.TagKind(kind)
	return nil
}

func (a *TagAdapter) AssignmentExists(ctx context.Context, messageID, tagID int64) (bool, error) {
	var exists bool
	err := a.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM message_tags WHERE message_id = $1 AND tag_id = $2)`,
		messageID, tagID)
	return exists, err
}

func (a *TagAdapter) CreateAssignments(ctx context.Context, assignments []*domain.TagAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO message_tags (message_id, tag_id) VALUES ($1, $2)
		ON CONFLICT (message_id, tag_id) DO NOTHING`

	for _, assignment := range assignments {
		if _, err := tx.ExecContext(ctx, query, assignment.MessageID, assignment.TagID); err != nil {
			return fmt.Errorf("failed to assign tag %d to message %d: %w", assignment.TagID, assignment.MessageID, err)
		}
	}

	return tx.Commit()
}
