// Package mongodb implements MongoDB adapters.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Body Archive Adapter
// =============================================================================

const (
	collectionBodies = "message_bodies"

	// Bodies below this size are stored uncompressed.
	compressionThreshold = 1024 // 1KB
)

// BodyArchiveAdapter implements out.BodyArchive. Raw HTML bodies live
// here rather than in Postgres; documents expire through a TTL index.
type BodyArchiveAdapter struct {
	collection *mongo.Collection
	ttlDays    int
}

var _ out.BodyArchive = (*BodyArchiveAdapter)(nil)

func NewBodyArchiveAdapter(db *mongo.Database, ttlDays int) *BodyArchiveAdapter {
	return &BodyArchiveAdapter{
		collection: db.Collection(collectionBodies),
		ttlDays:    ttlDays,
	}
}

// EnsureIndexes creates the lookup and TTL indexes. Call once at boot.
func (a *BodyArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type bodyDocument struct {
	MessageID  int64  `bson:"message_id"`
	AccountID  int64  `bson:"account_id"`
	ExternalID string `bson:"external_id"`

	HTML         []byte `bson:"html"`
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`
	OriginalSize int64  `bson:"original_size"`

	FetchedAt time.Time `bson:"fetched_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// SaveBody upserts the raw body for a message, compressing anything
// past the threshold.
func (a *BodyArchiveAdapter) SaveBody(ctx context.Context, doc *out.BodyDocument) error {
	htmlBytes := []byte(doc.HTML)
	textBytes := []byte(doc.Text)
	originalSize := int64(len(htmlBytes) + len(textBytes))

	isCompressed := false
	if originalSize > compressionThreshold {
		var err error
		if htmlBytes, err = compress(htmlBytes); err != nil {
			return fmt.Errorf("failed to compress HTML body: %w", err)
		}
		if textBytes, err = compress(textBytes); err != nil {
			return fmt.Errorf("failed to compress text body: %w", err)
		}
		isCompressed = true
	}

	stored := &bodyDocument{
		MessageID:    doc.MessageID,
		AccountID:    doc.AccountID,
		ExternalID:   doc.ExternalID,
		HTML:         htmlBytes,
		Text:         textBytes,
		IsCompressed: isCompressed,
		OriginalSize: originalSize,
		FetchedAt:    doc.FetchedAt,
		ExpiresAt:    doc.FetchedAt.AddDate(0, 0, a.ttlDays),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"message_id": doc.MessageID}, stored, opts); err != nil {
		return fmt.Errorf("failed to archive body for message %d: %w", doc.MessageID, err)
	}
	return nil
}

func (a *BodyArchiveAdapter) GetBody(ctx context.Context, messageID int64) (*out.BodyDocument, error) {
	var doc bodyDocument
	err := a.collection.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load body for message %d: %w", messageID, err)
	}

	htmlBytes := doc.HTML
	textBytes := doc.Text
	if doc.IsCompressed {
		if htmlBytes, err = decompress(doc.HTML); err != nil {
			return nil, fmt.Errorf("failed to decompress HTML body: %w", err)
		}
		if textBytes, err = decompress(doc.Text); err != nil {
			return nil, fmt.Errorf("failed to decompress text body: %w", err)
		}
	}

	return &out.BodyDocument{
		MessageID:  doc.MessageID,
		AccountID:  doc.AccountID,
		ExternalID: doc.ExternalID,
		HTML:       string(htmlBytes),
		Text:       string(textBytes),
		FetchedAt:  doc.FetchedAt,
	}, nil
}

// DeleteByAccount removes all archived bodies of one account, used when
// the account is disconnected.
func (a *BodyArchiveAdapter) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	result, err := a.collection.DeleteMany(ctx, bson.M{"account_id": accountID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete bodies for account %d: %w", accountID, err)
	}
	return result.DeletedCount, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
