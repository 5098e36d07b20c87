package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
	"github.com/saeid-a/GroupCoachBack/internal/services"
	chatws "github.com/saeid-a/GroupCoachBack/internal/websocket"
	"github.com/saeid-a/GroupCoachBack/pkg/utils"
)

type chatApplicationService interface {
	SendMessage(ctx context.Context, sessionID, userID int64, input services.SendMessageInput) (*models.SessionChatMessage, error)
	SendAnnouncement(ctx context.Context, sessionID, userID int64, content string) (*models.SessionChatMessage, error)
	EditMessage(ctx context.Context, messageID, userID int64, content string) (*models.SessionChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error)
	AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*services.ReactionUpdate, error)
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (*services.ReactionUpdate, error)
	CreatePoll(ctx context.Context, sessionID, userID int64, input services.CreatePollInput) (*models.SessionChatMessage, error)
	VotePoll(ctx context.Context, messageID, userID int64, optionIDs []string) (*models.SessionChatMessage, error)
	ClosePoll(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error)
	AskQuestion(ctx context.Context, sessionID, userID int64, content string) (*models.SessionChatMessage, error)
	AnswerQuestion(ctx context.Context, questionID, userID int64, content string) (*models.SessionChatMessage, error)
	UpvoteQuestion(ctx context.Context, questionID, userID int64) (*models.SessionChatMessage, error)
	GetTopQuestions(ctx context.Context, sessionID int64, includeAnswered bool, limit int) ([]models.SessionChatMessage, error)
	PinMessage(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error)
	UnpinMessage(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error)
	HideMessage(ctx context.Context, messageID, actorID int64, reason string) (*models.SessionChatMessage, error)
	HighlightMessage(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error)
	GetMessages(ctx context.Context, sessionID int64, filter repository.ChatMessageFilter) ([]models.SessionChatMessage, error)
	ClearSessionChat(ctx context.Context, sessionID, actorID int64) (int, error)
}

type SessionChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
}

func NewSessionChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string) *SessionChatHandler {
	return &SessionChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type sendMessageRequest struct {
	Content     string              `json:"content"`
	ReplyToID   *int64              `json:"reply_to_id"`
	Attachments []models.Attachment `json:"attachments"`
}

type announcementRequest struct {
	Content string `json:"content"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

type createPollRequest struct {
	Question         string   `json:"question" validate:"required,min=1,max=500"`
	Options          []string `json:"options" validate:"required,min=2,max=10,dive,min=1,max=200"`
	AllowMultiple    bool     `json:"allow_multiple"`
	Anonymous        bool     `json:"anonymous"`
	ShowResults      bool     `json:"show_results"`
	AutoCloseMinutes *int     `json:"auto_close_minutes" validate:"omitempty,gt=0,lte=1440"`
}

type votePollRequest struct {
	OptionIDs []string `json:"option_ids"`
}

type questionRequest struct {
	Content string `json:"content"`
}

type hideMessageRequest struct {
	Reason string `json:"reason"`
}

func (h *SessionChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.Context(), sessionID, userID, services.SendMessageInput{
		Content:     req.Content,
		ReplyToID:   req.ReplyToID,
		Attachments: req.Attachments,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *SessionChatHandler) SendAnnouncement(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req announcementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendAnnouncement(c.Context(), sessionID, userID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *SessionChatHandler) GetMessages(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	filter := repository.ChatMessageFilter{
		MessageType:    strings.TrimSpace(c.Query("type")),
		PinnedOnly:     c.QueryBool("pinned"),
		QuestionsOnly:  c.QueryBool("questions"),
		UnansweredOnly: c.QueryBool("unanswered"),
		Limit:          parsePositiveInt(c.Query("limit"), 0),
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "since must be a valid RFC3339 timestamp"})
		}
		filter.Since = &since
	}
	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "until must be a valid RFC3339 timestamp"})
		}
		filter.Until = &until
	}

	messages, err := h.service.GetMessages(c.Context(), sessionID, filter)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *SessionChatHandler) EditMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.EditMessage(c.Context(), messageID, userID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *SessionChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	if _, err := h.service.DeleteMessage(c.Context(), messageID, userID); err != nil {
		return mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionChatHandler) AddReaction(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	update, err := h.service.AddReaction(c.Context(), messageID, userID, req.Emoji)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"reaction": update})
}

func (h *SessionChatHandler) RemoveReaction(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	update, err := h.service.RemoveReaction(c.Context(), messageID, userID, req.Emoji)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"reaction": update})
}

func (h *SessionChatHandler) CreatePoll(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req createPollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	poll, err := h.service.CreatePoll(c.Context(), sessionID, userID, services.CreatePollInput{
		Question:         req.Question,
		Options:          req.Options,
		AllowMultiple:    req.AllowMultiple,
		Anonymous:        req.Anonymous,
		ShowResults:      req.ShowResults,
		AutoCloseMinutes: req.AutoCloseMinutes,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": poll})
}

func (h *SessionChatHandler) VotePoll(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req votePollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	poll, err := h.service.VotePoll(c.Context(), messageID, userID, req.OptionIDs)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": poll})
}

func (h *SessionChatHandler) ClosePoll(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	poll, err := h.service.ClosePoll(c.Context(), messageID, userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": poll})
}

func (h *SessionChatHandler) AskQuestion(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req questionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	question, err := h.service.AskQuestion(c.Context(), sessionID, userID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": question})
}

func (h *SessionChatHandler) AnswerQuestion(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	questionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req questionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	answer, err := h.service.AnswerQuestion(c.Context(), questionID, userID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": answer})
}

func (h *SessionChatHandler) UpvoteQuestion(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	questionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	question, err := h.service.UpvoteQuestion(c.Context(), questionID, userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": question})
}

func (h *SessionChatHandler) GetTopQuestions(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	includeAnswered := c.QueryBool("include_answered")
	limit := parsePositiveInt(c.Query("limit"), 10)

	questions, err := h.service.GetTopQuestions(c.Context(), sessionID, includeAnswered, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"questions": questions})
}

func (h *SessionChatHandler) PinMessage(c *fiber.Ctx) error {
	return h.moderate(c, h.service.PinMessage)
}

func (h *SessionChatHandler) UnpinMessage(c *fiber.Ctx) error {
	return h.moderate(c, h.service.UnpinMessage)
}

func (h *SessionChatHandler) HighlightMessage(c *fiber.Ctx) error {
	return h.moderate(c, h.service.HighlightMessage)
}

func (h *SessionChatHandler) moderate(
	c *fiber.Ctx,
	op func(ctx context.Context, messageID, actorID int64) (*models.SessionChatMessage, error),
) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	message, err := op(c.Context(), messageID, userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *SessionChatHandler) HideMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req hideMessageRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	message, err := h.service.HideMessage(c.Context(), messageID, userID, req.Reason)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *SessionChatHandler) ClearChat(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	cleared, err := h.service.ClearSessionChat(c.Context(), sessionID, userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"cleared": cleared})
}

func (h *SessionChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *SessionChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	sessionID, err := parseWSSessionID(conn.Params("id"))
	if err != nil {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, userID, sessionID)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func parseWSSessionID(raw string) (int64, error) {
	sessionID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sessionID <= 0 {
		return 0, errors.New("invalid session id")
	}
	return sessionID, nil
}

func (h *SessionChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrInvalidPollVote):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid poll vote"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrAlreadyReacted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already reacted with this emoji"})
	case errors.Is(err, services.ErrFeatureDisabled):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Feature disabled for this session"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
