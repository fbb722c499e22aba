// Package classify maps external categorization labels onto stored
// messages as tag assignments.
package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// labelToTag maps lowercase external labels to internal tag names. The
// spam label is absent on purpose: it flips the message's spam flag and
// never materializes a tag row.
var labelToTag = map[string]string{
	"work":       "Work",
	"personal":   "Personal",
	"finance":    "Finance",
	"shopping":   "Shopping",
	"social":     "Social",
	"travel":     "Travel",
	"newsletter": "Newsletter",
	"promotion":  "Promotion",
	"security":   "Security",
	"receipt":    "Receipt",
}

const spamLabel = "spam"

// Service runs the classification pipeline over newly persisted
// received messages. Failures are soft: a dead classifier yields an
// untagged sync, never a failed one.
type Service struct {
	backend  out.LabelClassifier
	tags     domain.TagRepository
	messages domain.MessageRepository

	// Memoized name->tag lookups so repeated syncs don't re-query or
	// re-create the same tags.
	mu       sync.Mutex
	tagCache map[string]*domain.Tag
}

func NewService(backend out.LabelClassifier, tags domain.TagRepository, messages domain.MessageRepository) *Service {
	return &Service{
		backend:  backend,
		tags:     tags,
		messages: messages,
		tagCache: make(map[string]*domain.Tag),
	}
}

// Ping reports whether the classifier backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("no classifier backend configured")
	}
	return s.backend.Ping(ctx)
}

// ClassifyMessages submits the received messages in one batch and
// applies the resulting labels. Every message must already hold a
// database-assigned ID. Returns the assignments that were created.
func (s *Service) ClassifyMessages(ctx context.Context, messages []*domain.Message) []*domain.TagAssignment {
	items := make([]out.ClassifyItem, 0, len(messages))
	byID := make(map[int64]*domain.Message, len(messages))
	for _, msg := range messages {
		if msg.Kind != domain.MessageReceived || msg.ID == 0 {
			continue
		}
		items = append(items, out.ClassifyItem{ID: msg.ID, Content: buildContent(msg)})
		byID[msg.ID] = msg
	}
	if len(items) == 0 {
		return nil
	}
	if s.backend == nil {
		logger.Debug("[Classifier.ClassifyMessages] No backend configured, %d messages left untagged", len(items))
		return nil
	}

	results, err := s.backend.ClassifyBatch(ctx, items)
	if err != nil {
		logger.Warn("[Classifier.ClassifyMessages] Batch of %d failed, continuing untagged: %v", len(items), err)
		return nil
	}

	var created []*domain.TagAssignment
	for _, result := range results {
		msg, ok := byID[result.ID]
		if !ok {
			logger.Warn("[Classifier.ClassifyMessages] Result for unknown message id %d ignored", result.ID)
			continue
		}
		created = append(created, s.applyLabels(ctx, msg, result.Labels)...)
	}

	logger.Info("[Classifier.ClassifyMessages] Classified %d messages, created %d assignments", len(items), len(created))
	return created
}

func (s *Service) applyLabels(ctx context.Context, msg *domain.Message, labels []string) []*domain.TagAssignment {
	var assignments []*domain.TagAssignment
	for _, raw := range labels {
		label := strings.ToLower(strings.TrimSpace(raw))

		if label == spamLabel {
			if err := s.messages.SetSpam(ctx, msg.ID, true); err != nil {
				logger.Error("[Classifier.applyLabels] Failed to flag message %d as spam: %v", msg.ID, err)
				continue
			}
			msg.IsSpam = true
			continue
		}

		tagName, ok := labelToTag[label]
		if !ok {
			logger.Debug("[Classifier.applyLabels] Unrecognized label %q on message %d ignored", raw, msg.ID)
			continue
		}

		tag, err := s.resolveTag(ctx, tagName)
		if err != nil {
			logger.Error("[Classifier.applyLabels] Failed to resolve tag %q: %v", tagName, err)
			continue
		}

		assignment, err := s.assign(ctx, msg.ID, tag)
		if err != nil {
			logger.Error("[Classifier.applyLabels] Failed to assign tag %q to message %d: %v", tagName, msg.ID, err)
			continue
		}
		if assignment != nil {
			assignments = append(assignments, assignment)
			msg.Tags = append(msg.Tags, tag)
		}
	}
	return assignments
}

// resolveTag returns the tag for the mapped name, creating and
// persisting it first so a stable ID exists before any assignment row
// references it.
func (s *Service) resolveTag(ctx context.Context, name string) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tag, ok := s.tagCache[name]; ok {
		return tag, nil
	}

	tag, err := s.tags.GetByName(ctx, name)
	if err == nil {
		s.tagCache[name] = tag
		return tag, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// No pre-seeded tag with this name; materialize it as user-kind.
	tag = &domain.Tag{Name: name, Kind: domain.TagUser}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, err
	}
	s.tagCache[name] = tag
	return tag, nil
}

// assign inserts the (message, tag) row unless it already exists, so
// re-running classification over the same batch is safe.
func (s *Service) assign(ctx context.Context, messageID int64, tag *domain.Tag) (*domain.TagAssignment, error) {
	exists, err := s.tags.AssignmentExists(ctx, messageID, tag.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	assignment := &domain.TagAssignment{MessageID: messageID, TagID: tag.ID}
	if err := s.tags.CreateAssignments(ctx, []*domain.TagAssignment{assignment}); err != nil {
		return nil, err
	}
	return assignment, nil
}

// buildContent is the text submitted for categorization: subject plus a
// bounded slice of the body.
func buildContent(msg *domain.Message) string {
	const maxBody = 2000

	body := truncateAtRune(msg.Body, maxBody)
	if msg.Subject == "" {
		return body
	}
	if body == "" {
		return msg.Subject
	}
	return msg.Subject + "\n\n" + body
}

// truncateAtRune cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
