package http

import (
	"mailsync_server/core/domain"

	"github.com/gofiber/fiber/v2"
)

type TagHandler struct {
	tags domain.TagRepository
}

func NewTagHandler(tags domain.TagRepository) *TagHandler {
	return &TagHandler{tags: tags}
}

func (h *TagHandler) Register(router fiber.Router) {
	router.Get("/tags", h.ListTags)
}

// ListTags returns the system tag vocabulary, the set classification
// can assign to messages.
func (h *TagHandler) ListTags(c *fiber.Ctx) error {
	if _, err := MustGetUserID(c); err != nil {
		return err
	}

	tags, err := h.tags.ListSystem(c.Context())
	if err != nil {
		return InternalErrorResponse(c, err, "list tags")
	}
	return SuccessResponse(c, tags)
}
