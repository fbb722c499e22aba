package domain

import "context"

type TagKind string

const (
	TagSystem TagKind = "system" // pre-seeded
	TagUser   TagKind = "user"   // created lazily by users or the classifier
)

type Tag struct {
	ID   int64   `json:"id" db:"id"`
	Name string  `json:"name" db:"name"`
	Kind TagKind `json:"kind" db:"kind"`
}

// TagAssignment links a received message to a tag.
type TagAssignment struct {
	MessageID int64 `json:"message_id" db:"message_id"`
	TagID     int64 `json:"tag_id" db:"tag_id"`
}

type TagRepository interface {
	GetByName(ctx context.Context, name string) (*Tag, error)
	ListSystem(ctx context.Context) ([]*Tag, error)
	// Create persists the tag and populates its ID before returning, so
	// assignment rows can reference it immediately.
	Create(ctx context.Context, tag *Tag) error
	AssignmentExists(ctx context.Context, messageID, tagID int64) (bool, error)
	CreateAssignments(ctx context.Context, assignments []*TagAssignment) error
}
