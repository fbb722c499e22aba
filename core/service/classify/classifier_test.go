package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

type fakeBackend struct {
	results  []out.ClassifyResult
	err      error
	gotItems []out.ClassifyItem
	pingErr  error
}

func (b *fakeBackend) ClassifyBatch(ctx context.Context, items []out.ClassifyItem) ([]out.ClassifyResult, error) {
	b.gotItems = items
	return b.results, b.err
}

func (b *fakeBackend) Ping(ctx context.Context) error { return b.pingErr }

type fakeTagRepo struct {
	tags        map[string]*domain.Tag
	nextID      int64
	created     []*domain.Tag
	assignments []*domain.TagAssignment
	existing    map[[2]int64]bool
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{
		tags:     make(map[string]*domain.Tag),
		nextID:   100,
		existing: make(map[[2]int64]bool),
	}
}

func (r *fakeTagRepo) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	if tag, ok := r.tags[name]; ok {
		return tag, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeTagRepo) ListSystem(ctx context.Context) ([]*domain.Tag, error) { return nil, nil }

func (r *fakeTagRepo) Create(ctx context.Context, tag *domain.Tag) error {
	r.nextID++
	tag.ID = r.nextID
	r.tags[tag.Name] = tag
	r.created = append(r.created, tag)
	return nil
}

func (r *fakeTagRepo) AssignmentExists(ctx context.Context, messageID, tagID int64) (bool, error) {
	return r.existing[[2]int64{messageID, tagID}], nil
}

func (r *fakeTagRepo) CreateAssignments(ctx context.Context, assignments []*domain.TagAssignment) error {
	for _, a := range assignments {
		r.existing[[2]int64{a.MessageID, a.TagID}] = true
	}
	r.assignments = append(r.assignments, assignments...)
	return nil
}

type fakeMessageRepo struct {
	domain.MessageRepository
	spamFlagged []int64
}

func (r *fakeMessageRepo) SetSpam(ctx context.Context, messageID int64, spam bool) error {
	r.spamFlagged = append(r.spamFlagged, messageID)
	return nil
}

func received(id int64, subject string) *domain.Message {
	return &domain.Message{ID: id, Kind: domain.MessageReceived, Subject: subject, Body: "body"}
}

func TestClassifyMessages_MapsLabelsToTags(t *testing.T) {
	backend := &fakeBackend{results: []out.ClassifyResult{
		{ID: 7, Labels: []string{"work"}},
		{ID: 8, Labels: []string{"finance", "newsletter"}},
	}}
	tags := newFakeTagRepo()
	msgs := &fakeMessageRepo{}
	svc := NewService(backend, tags, msgs)

	created := svc.ClassifyMessages(context.Background(), []*domain.Message{
		received(7, "standup"), received(8, "invoice"),
	})

	if len(created) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(created))
	}
	if len(backend.gotItems) != 2 {
		t.Fatalf("expected one batch of 2 items, got %d", len(backend.gotItems))
	}
	if backend.gotItems[0].ID != 7 {
		t.Errorf("items must be keyed by persisted id, got %d", backend.gotItems[0].ID)
	}
	if _, ok := tags.tags["Work"]; !ok {
		t.Error("Work tag not materialized")
	}
}

func TestClassifyMessages_SpamLabel(t *testing.T) {
	backend := &fakeBackend{results: []out.ClassifyResult{
		{ID: 7, Labels: []string{"work", "spam"}},
	}}
	tags := newFakeTagRepo()
	msgs := &fakeMessageRepo{}
	svc := NewService(backend, tags, msgs)

	msg := received(7, "free money")
	created := svc.ClassifyMessages(context.Background(), []*domain.Message{msg})

	if len(msgs.spamFlagged) != 1 || msgs.spamFlagged[0] != 7 {
		t.Errorf("spam label must flag the message, got %v", msgs.spamFlagged)
	}
	if !msg.IsSpam {
		t.Error("in-memory spam flag not set")
	}
	if len(created) != 1 {
		t.Fatalf("expected only the work assignment, got %d", len(created))
	}
	if _, ok := tags.tags["Spam"]; ok {
		t.Error("spam must never materialize a tag row")
	}
}

func TestClassifyMessages_UnrecognizedLabelIgnored(t *testing.T) {
	backend := &fakeBackend{results: []out.ClassifyResult{
		{ID: 7, Labels: []string{"astrology"}},
	}}
	tags := newFakeTagRepo()
	svc := NewService(backend, tags, &fakeMessageRepo{})

	created := svc.ClassifyMessages(context.Background(), []*domain.Message{received(7, "stars")})
	if len(created) != 0 {
		t.Errorf("unrecognized label must produce nothing, got %d assignments", len(created))
	}
	if len(tags.created) != 0 {
		t.Error("no tag should be created for an unrecognized label")
	}
}

func TestClassifyMessages_BackendFailureIsSoft(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	svc := NewService(backend, newFakeTagRepo(), &fakeMessageRepo{})

	created := svc.ClassifyMessages(context.Background(), []*domain.Message{received(7, "x")})
	if created != nil {
		t.Errorf("backend failure must yield empty result, got %v", created)
	}
}

func TestClassifyMessages_Rerunnable(t *testing.T) {
	backend := &fakeBackend{results: []out.ClassifyResult{
		{ID: 7, Labels: []string{"work"}},
	}}
	tags := newFakeTagRepo()
	svc := NewService(backend, tags, &fakeMessageRepo{})

	first := svc.ClassifyMessages(context.Background(), []*domain.Message{received(7, "a")})
	second := svc.ClassifyMessages(context.Background(), []*domain.Message{received(7, "a")})

	if len(first) != 1 {
		t.Fatalf("first run should assign, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second run must skip the existing pair, got %d", len(second))
	}
	if len(tags.created) != 1 {
		t.Errorf("tag must be created once and memoized, got %d creations", len(tags.created))
	}
}

func TestClassifyMessages_SkipsUnpersistedAndSent(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, newFakeTagRepo(), &fakeMessageRepo{})

	svc.ClassifyMessages(context.Background(), []*domain.Message{
		{ID: 0, Kind: domain.MessageReceived, Subject: "no id"},
		{ID: 9, Kind: domain.MessageSent, Subject: "sent"},
	})

	if backend.gotItems != nil {
		t.Errorf("nothing classifiable should reach the backend, got %v", backend.gotItems)
	}
}

func TestClassifyMessages_UnknownResultIDIgnored(t *testing.T) {
	backend := &fakeBackend{results: []out.ClassifyResult{
		{ID: 999, Labels: []string{"work"}},
	}}
	tags := newFakeTagRepo()
	svc := NewService(backend, tags, &fakeMessageRepo{})

	created := svc.ClassifyMessages(context.Background(), []*domain.Message{received(7, "a")})
	if len(created) != 0 {
		t.Errorf("result for unknown id must be dropped, got %d", len(created))
	}
}

func TestBuildContent_TruncatesOnRuneBoundary(t *testing.T) {
	// 1999 ASCII bytes followed by a 3-byte rune that straddles the
	// 2000-byte cap; the whole rune must be dropped.
	body := strings.Repeat("a", 1999) + "한국어"
	msg := &domain.Message{Body: body}

	content := buildContent(msg)
	if !utf8.ValidString(content) {
		t.Fatal("truncated content contains a split rune")
	}
	if len(content) != 1999 {
		t.Errorf("expected cut before the straddling rune, got %d bytes", len(content))
	}

	short := &domain.Message{Subject: "hi", Body: "안녕하세요"}
	if got := buildContent(short); got != "hi\n\n안녕하세요" {
		t.Errorf("short body must pass through intact, got %q", got)
	}
}
