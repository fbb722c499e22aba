package http

import (
	"errors"
	"strconv"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AccountHandler struct {
	accountRepo domain.AccountRepository
	messageRepo domain.MessageRepository
	producer    out.SyncJobProducer
}

func NewAccountHandler(
	accountRepo domain.AccountRepository,
	messageRepo domain.MessageRepository,
	producer out.SyncJobProducer,
) *AccountHandler {
	return &AccountHandler{
		accountRepo: accountRepo,
		messageRepo: messageRepo,
		producer:    producer,
	}
}

func (h *AccountHandler) Register(router fiber.Router) {
	router.Get("/accounts", h.ListAccounts)
	router.Post("/accounts/:id/sync", h.TriggerSync)
	router.Get("/accounts/:id/messages", h.ListMessages)
}

// ListAccounts returns the caller's connected mail accounts.
func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	accounts, err := h.accountRepo.ListByUser(c.Context(), userID)
	if err != nil {
		return InternalErrorResponse(c, err, "list accounts")
	}
	return SuccessResponse(c, accounts)
}

// TriggerSync enqueues a sync job for one account. The sync itself runs
// on the worker; this returns as soon as the job is on the stream.
func (h *AccountHandler) TriggerSync(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	account, err := h.ownedAccount(c, userID)
	if err != nil {
		return err
	}

	if h.producer == nil {
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "sync queue unavailable")
	}
	jobID, err := h.producer.PublishAccountSync(c.Context(), account.ID, userID)
	if err != nil {
		return InternalErrorResponse(c, err, "enqueue sync")
	}
	return SuccessResponse(c, fiber.Map{"job_id": jobID, "account_id": account.ID})
}

// ListMessages returns stored messages for one account, newest first.
func (h *AccountHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	account, err := h.ownedAccount(c, userID)
	if err != nil {
		return err
	}

	kind := domain.MessageKind(c.Query("kind", string(domain.MessageReceived)))
	if kind != domain.MessageReceived && kind != domain.MessageSent {
		return ErrorResponse(c, fiber.StatusBadRequest, "kind must be received or sent")
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, err := h.messageRepo.ListByAccount(c.Context(), account.ID, kind, limit, offset)
	if err != nil {
		return InternalErrorResponse(c, err, "list messages")
	}
	total, err := h.messageRepo.CountByAccount(c.Context(), account.ID, kind)
	if err != nil {
		return InternalErrorResponse(c, err, "count messages")
	}

	return SuccessResponse(c, fiber.Map{
		"messages": messages,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ownedAccount loads the :id account and verifies the caller owns it.
func (h *AccountHandler) ownedAccount(c *fiber.Ctx, userID uuid.UUID) (*domain.MailAccount, error) {
	accountID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, ErrorResponse(c, fiber.StatusBadRequest, "invalid account id")
	}

	account, err := h.accountRepo.GetByID(c.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrorResponse(c, fiber.StatusNotFound, "account not found")
		}
		return nil, InternalErrorResponse(c, err, "load account")
	}
	if account.UserID != userID {
		return nil, ErrorResponse(c, fiber.StatusForbidden, "account belongs to another user")
	}
	return account, nil
}
