package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/services"
)

type participantApplicationService interface {
	Register(ctx context.Context, sessionID, userID int64) (*models.RegistrationResult, error)
	CancelRegistration(ctx context.Context, sessionID, userID int64) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error)
	IsRegistered(ctx context.Context, sessionID, userID int64) (*models.Participant, bool, error)
	RecordJoin(ctx context.Context, sessionID, userID int64) (*models.Participant, error)
	RecordLeave(ctx context.Context, sessionID, userID int64) (*models.Participant, error)
	SubmitRating(ctx context.Context, sessionID, userID int64, rating int, feedback *string) (*models.Participant, error)
	MarkPaymentCompleted(ctx context.Context, sessionID, userID int64, paymentRef string) (*models.Participant, error)
}

type ParticipantHandler struct {
	service participantApplicationService
}

func NewParticipantHandler(service participantApplicationService) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

type submitRatingRequest struct {
	Rating   int     `json:"rating"`
	Feedback *string `json:"feedback"`
}

type confirmPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

func (h *ParticipantHandler) Register(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	result, err := h.service.Register(c.Context(), sessionID, userID)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"registration": result})
}

func (h *ParticipantHandler) CancelRegistration(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	participant, err := h.service.CancelRegistration(c.Context(), sessionID, userID)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"participant": participant})
}

func (h *ParticipantHandler) GetRegistration(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	participant, registered, err := h.service.IsRegistered(c.Context(), sessionID, userID)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"registered": registered, "participant": participant})
}

func (h *ParticipantHandler) ListParticipants(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	participants, err := h.service.ListParticipants(c.Context(), sessionID)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"participants": participants})
}

func (h *ParticipantHandler) Join(c *fiber.Ctx) error {
	return h.attendance(c, h.service.RecordJoin)
}

func (h *ParticipantHandler) Leave(c *fiber.Ctx) error {
	return h.attendance(c, h.service.RecordLeave)
}

func (h *ParticipantHandler) attendance(
	c *fiber.Ctx,
	op func(ctx context.Context, sessionID, userID int64) (*models.Participant, error),
) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	participant, err := op(c.Context(), sessionID, userID)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"participant": participant})
}

func (h *ParticipantHandler) SubmitRating(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req submitRatingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Feedback != nil && strings.TrimSpace(*req.Feedback) == "" {
		req.Feedback = nil
	}

	participant, err := h.service.SubmitRating(c.Context(), sessionID, userID, req.Rating, req.Feedback)
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"participant": participant})
}

func (h *ParticipantHandler) ConfirmPayment(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	participant, err := h.service.MarkPaymentCompleted(c.Context(), sessionID, userID, strings.TrimSpace(req.PaymentRef))
	if err != nil {
		return mapParticipantError(c, err)
	}

	return c.JSON(fiber.Map{"participant": participant})
}

func mapParticipantError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrDuplicateRegistration):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already registered for this session"})
	case errors.Is(err, services.ErrSessionFull):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session is full"})
	case errors.Is(err, services.ErrAlreadyRated):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session already rated"})
	case errors.Is(err, services.ErrRegistrationClosed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Registration is closed"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Invalid state for this operation"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrParticipantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Registration not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process registration request"})
	}
}
