package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
	"github.com/saeid-a/GroupCoachBack/internal/services"
)

var validate = validator.New()

type groupSessionApplicationService interface {
	CreateSession(ctx context.Context, coachID int64, input services.CreateGroupSessionInput) (*models.GroupSession, error)
	UpdateSession(ctx context.Context, sessionID, coachID int64, input services.UpdateGroupSessionInput) (*models.GroupSession, error)
	GetSession(ctx context.Context, sessionID int64) (*models.GroupSession, error)
	ListSessions(ctx context.Context, filter repository.GroupSessionFilter, sort repository.GroupSessionSort, page repository.Page) ([]models.GroupSession, int, error)
	DiscoverSessions(ctx context.Context, page repository.Page) ([]models.GroupSession, int, error)
	StartSession(ctx context.Context, sessionID, coachID int64) (*models.GroupSession, error)
	EndSession(ctx context.Context, sessionID, coachID int64) (*models.GroupSession, error)
	CancelSession(ctx context.Context, sessionID, coachID int64, reason string) (*models.GroupSession, int, error)
}

type GroupSessionHandler struct {
	service groupSessionApplicationService
}

func NewGroupSessionHandler(service groupSessionApplicationService) *GroupSessionHandler {
	return &GroupSessionHandler{service: service}
}

type createGroupSessionRequest struct {
	Title             string           `json:"title" validate:"required,min=1,max=200"`
	Description       *string          `json:"description"`
	SessionType       string           `json:"session_type" validate:"omitempty,max=50"`
	Category          *string          `json:"category"`
	Tags              []string         `json:"tags" validate:"omitempty,max=10,dive,min=1,max=40"`
	ScheduledAt       string           `json:"scheduled_at" validate:"required"`
	DurationMinutes   int              `json:"duration_minutes" validate:"required,gt=0,lte=480"`
	Timezone          string           `json:"timezone"`
	RecurrencePattern string           `json:"recurrence_pattern" validate:"omitempty,oneof=none daily weekly biweekly monthly"`
	RecurrenceEndDate *string          `json:"recurrence_end_date"`
	MaxParticipants   int              `json:"max_participants" validate:"omitempty,gt=0,lte=1000"`
	MinParticipants   int              `json:"min_participants" validate:"omitempty,gt=0"`
	WaitlistEnabled   *bool            `json:"waitlist_enabled"`
	IsFree            bool             `json:"is_free"`
	Price             decimal.Decimal  `json:"price"`
	EarlyBirdPrice    *decimal.Decimal `json:"early_bird_price"`
	EarlyBirdDeadline *string          `json:"early_bird_deadline"`
	Currency          string           `json:"currency" validate:"omitempty,len=3"`
	ChatEnabled       *bool            `json:"chat_enabled"`
	PollsEnabled      *bool            `json:"polls_enabled"`
	QAEnabled         *bool            `json:"qa_enabled"`
	RecordingEnabled  *bool            `json:"recording_enabled"`
}

type updateGroupSessionRequest struct {
	Title             *string          `json:"title"`
	Description       *string          `json:"description"`
	SessionType       *string          `json:"session_type"`
	Category          *string          `json:"category"`
	Tags              *[]string        `json:"tags"`
	ScheduledAt       *string          `json:"scheduled_at"`
	DurationMinutes   *int             `json:"duration_minutes"`
	Timezone          *string          `json:"timezone"`
	MaxParticipants   *int             `json:"max_participants"`
	MinParticipants   *int             `json:"min_participants"`
	WaitlistEnabled   *bool            `json:"waitlist_enabled"`
	IsFree            *bool            `json:"is_free"`
	Price             *decimal.Decimal `json:"price"`
	EarlyBirdPrice    *decimal.Decimal `json:"early_bird_price"`
	EarlyBirdDeadline *string          `json:"early_bird_deadline"`
	Currency          *string          `json:"currency"`
	ChatEnabled       *bool            `json:"chat_enabled"`
	PollsEnabled      *bool            `json:"polls_enabled"`
	QAEnabled         *bool            `json:"qa_enabled"`
	RecordingEnabled  *bool            `json:"recording_enabled"`
}

type cancelGroupSessionRequest struct {
	Reason string `json:"reason"`
}

func (h *GroupSessionHandler) CreateSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createGroupSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}
	recurrenceEnd, err := parseOptionalTime(req.RecurrenceEndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "recurrence_end_date must be a valid RFC3339 timestamp"})
	}
	earlyBirdDeadline, err := parseOptionalTime(req.EarlyBirdDeadline)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "early_bird_deadline must be a valid RFC3339 timestamp"})
	}

	session, err := h.service.CreateSession(c.Context(), coachID, services.CreateGroupSessionInput{
		Title:             req.Title,
		Description:       req.Description,
		SessionType:       req.SessionType,
		Category:          req.Category,
		Tags:              req.Tags,
		ScheduledAt:       scheduledAt,
		DurationMinutes:   req.DurationMinutes,
		Timezone:          req.Timezone,
		RecurrencePattern: req.RecurrencePattern,
		RecurrenceEndDate: recurrenceEnd,
		MaxParticipants:   req.MaxParticipants,
		MinParticipants:   req.MinParticipants,
		WaitlistEnabled:   req.WaitlistEnabled,
		IsFree:            req.IsFree,
		Price:             req.Price,
		EarlyBirdPrice:    req.EarlyBirdPrice,
		EarlyBirdDeadline: earlyBirdDeadline,
		Currency:          req.Currency,
		ChatEnabled:       req.ChatEnabled,
		PollsEnabled:      req.PollsEnabled,
		QAEnabled:         req.QAEnabled,
		RecordingEnabled:  req.RecordingEnabled,
	})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) UpdateSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req updateGroupSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledAt, err := parseOptionalTime(req.ScheduledAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}
	earlyBirdDeadline, err := parseOptionalTime(req.EarlyBirdDeadline)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "early_bird_deadline must be a valid RFC3339 timestamp"})
	}

	session, err := h.service.UpdateSession(c.Context(), sessionID, coachID, services.UpdateGroupSessionInput{
		Title:             req.Title,
		Description:       req.Description,
		SessionType:       req.SessionType,
		Category:          req.Category,
		Tags:              req.Tags,
		ScheduledAt:       scheduledAt,
		DurationMinutes:   req.DurationMinutes,
		Timezone:          req.Timezone,
		MaxParticipants:   req.MaxParticipants,
		MinParticipants:   req.MinParticipants,
		WaitlistEnabled:   req.WaitlistEnabled,
		IsFree:            req.IsFree,
		Price:             req.Price,
		EarlyBirdPrice:    req.EarlyBirdPrice,
		EarlyBirdDeadline: earlyBirdDeadline,
		Currency:          req.Currency,
		ChatEnabled:       req.ChatEnabled,
		PollsEnabled:      req.PollsEnabled,
		QAEnabled:         req.QAEnabled,
		RecordingEnabled:  req.RecordingEnabled,
	})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) GetSession(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), sessionID)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) ListSessions(c *fiber.Ctx) error {
	filter, err := parseSessionFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sort, err := parseSessionSort(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	sessions, total, err := h.service.ListSessions(c.Context(), filter, sort, repository.Page{Number: page, Limit: limit})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   sessions,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *GroupSessionHandler) DiscoverSessions(c *fiber.Ctx) error {
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	sessions, total, err := h.service.DiscoverSessions(c.Context(), repository.Page{Number: page, Limit: limit})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   sessions,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *GroupSessionHandler) StartSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.StartSession)
}

func (h *GroupSessionHandler) EndSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.EndSession)
}

func (h *GroupSessionHandler) transition(
	c *fiber.Ctx,
	op func(ctx context.Context, sessionID, coachID int64) (*models.GroupSession, error),
) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := op(c.Context(), sessionID, coachID)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) CancelSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req cancelGroupSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	session, refunds, err := h.service.CancelSession(c.Context(), sessionID, coachID, strings.TrimSpace(req.Reason))
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session, "refunds_processed": refunds})
}

func parseSessionFilter(c *fiber.Ctx) (repository.GroupSessionFilter, error) {
	filter := repository.GroupSessionFilter{
		SessionType: strings.TrimSpace(c.Query("type")),
		Category:    strings.TrimSpace(c.Query("category")),
		Search:      strings.TrimSpace(c.Query("search")),
	}

	if raw := strings.TrimSpace(c.Query("coach_id")); raw != "" {
		coachID := parsePositiveInt(raw, 0)
		if coachID == 0 {
			return filter, errors.New("coach_id must be a positive integer")
		}
		filter.CoachID = int64(coachID)
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if raw := strings.TrimSpace(c.Query("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	switch strings.TrimSpace(c.Query("pricing")) {
	case "":
	case "free":
		filter.FreeOnly = true
	case "paid":
		filter.PaidOnly = true
	default:
		return filter, errors.New("pricing must be free or paid")
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("from must be a valid RFC3339 timestamp")
		}
		filter.ScheduledFrom = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("to must be a valid RFC3339 timestamp")
		}
		filter.ScheduledTo = &to
	}

	return filter, nil
}

func parseSessionSort(c *fiber.Ctx) (repository.GroupSessionSort, error) {
	sort := repository.GroupSessionSort{Key: repository.SortByScheduledAt}

	switch raw := strings.TrimSpace(c.Query("sort_by")); raw {
	case "", repository.SortByScheduledAt:
	case repository.SortByCreatedAt, repository.SortByPrice, repository.SortByParticipants:
		sort.Key = raw
	default:
		return sort, errors.New("sort_by must be scheduled_at, created_at, price, or current_participants")
	}

	switch strings.TrimSpace(c.Query("order")) {
	case "", "asc":
	case "desc":
		sort.Descending = true
	default:
		return sort, errors.New("order must be asc or desc")
	}

	return sort, nil
}

func parseOptionalTime(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func mapGroupSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Invalid session state for this operation"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
