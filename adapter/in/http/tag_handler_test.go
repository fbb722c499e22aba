package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"mailsync_server/core/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type fakeTagRepo struct {
	domain.TagRepository
	tags []*domain.Tag
	err  error
}

func (r *fakeTagRepo) ListSystem(ctx context.Context) ([]*domain.Tag, error) {
	return r.tags, r.err
}

func newTagApp(repo domain.TagRepository, authed bool) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if authed {
			c.Locals("user_id", uuid.New())
		}
		return c.Next()
	})
	NewTagHandler(repo).Register(app)
	return app
}

func TestListTags(t *testing.T) {
	repo := &fakeTagRepo{tags: []*domain.Tag{
		{ID: 1, Name: "Finance", Kind: domain.TagSystem},
		{ID: 2, Name: "Work", Kind: domain.TagSystem},
	}}
	app := newTagApp(repo, true)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tags", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Finance") || !strings.Contains(string(body), "Work") {
		t.Errorf("expected system tags in response, got %s", body)
	}
}

func TestListTags_Unauthenticated(t *testing.T) {
	app := newTagApp(&fakeTagRepo{}, false)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tags", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without user context, got %d", resp.StatusCode)
	}
}
