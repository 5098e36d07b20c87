package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
	"github.com/saeid-a/GroupCoachBack/internal/services"
)

type stubChatService struct {
	messageResult  *models.SessionChatMessage
	messageErr     error
	reactionResult *services.ReactionUpdate
	reactionErr    error
	topResult      []models.SessionChatMessage
	topErr         error
	listResult     []models.SessionChatMessage
	listErr        error
	clearedCount   int
	clearedErr     error

	lastSessionID       int64
	lastMessageID       int64
	lastUserID          int64
	lastSendInput       services.SendMessageInput
	lastPollInput       services.CreatePollInput
	lastOptionIDs       []string
	lastEmoji           string
	lastContent         string
	lastReason          string
	lastFilter          repository.ChatMessageFilter
	lastIncludeAnswered bool
	lastLimit           int
}

func (s *stubChatService) SendMessage(_ context.Context, sessionID, userID int64, input services.SendMessageInput) (*models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastUserID = userID
	s.lastSendInput = input
	return s.messageResult, s.messageErr
}

func (s *stubChatService) SendAnnouncement(_ context.Context, sessionID, userID int64, content string) (*models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastUserID = userID
	s.lastContent = content
	return s.messageResult, s.messageErr
}

func (s *stubChatService) EditMessage(_ context.Context, messageID, userID int64, content string) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = userID
	s.lastContent = content
	return s.messageResult, s.messageErr
}

func (s *stubChatService) DeleteMessage(_ context.Context, messageID, actorID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) AddReaction(_ context.Context, messageID, userID int64, emoji string) (*services.ReactionUpdate, error) {
	s.lastMessageID = messageID
	s.lastUserID = userID
	s.lastEmoji = emoji
	return s.reactionResult, s.reactionErr
}

func (s *stubChatService) RemoveReaction(_ context.Context, messageID, userID int64, emoji string) (*services.ReactionUpdate, error) {
	s.lastMessageID = messageID
	s.lastUserID = userID
	s.lastEmoji = emoji
	return s.reactionResult, s.reactionErr
}

func (s *stubChatService) CreatePoll(_ context.Context, sessionID, userID int64, input services.CreatePollInput) (*models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastUserID = userID
	s.lastPollInput = input
	return s.messageResult, s.messageErr
}

func (s *stubChatService) VotePoll(_ context.Context, messageID, userID int64, optionIDs []string) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = userID
	s.lastOptionIDs = optionIDs
	return s.messageResult, s.messageErr
}

func (s *stubChatService) ClosePoll(_ context.Context, messageID, actorID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) AskQuestion(_ context.Context, sessionID, userID int64, content string) (*models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastUserID = userID
	s.lastContent = content
	return s.messageResult, s.messageErr
}

func (s *stubChatService) AnswerQuestion(_ context.Context, questionID, userID int64, content string) (*models.SessionChatMessage, error) {
	s.lastMessageID = questionID
	s.lastUserID = userID
	s.lastContent = content
	return s.messageResult, s.messageErr
}

func (s *stubChatService) UpvoteQuestion(_ context.Context, questionID, userID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = questionID
	s.lastUserID = userID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) GetTopQuestions(_ context.Context, sessionID int64, includeAnswered bool, limit int) ([]models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastIncludeAnswered = includeAnswered
	s.lastLimit = limit
	return s.topResult, s.topErr
}

func (s *stubChatService) PinMessage(_ context.Context, messageID, actorID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) UnpinMessage(_ context.Context, messageID, actorID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) HideMessage(_ context.Context, messageID, actorID int64, reason string) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	s.lastReason = reason
	return s.messageResult, s.messageErr
}

func (s *stubChatService) HighlightMessage(_ context.Context, messageID, actorID int64) (*models.SessionChatMessage, error) {
	s.lastMessageID = messageID
	s.lastUserID = actorID
	return s.messageResult, s.messageErr
}

func (s *stubChatService) GetMessages(_ context.Context, sessionID int64, filter repository.ChatMessageFilter) ([]models.SessionChatMessage, error) {
	s.lastSessionID = sessionID
	s.lastFilter = filter
	return s.listResult, s.listErr
}

func (s *stubChatService) ClearSessionChat(_ context.Context, sessionID, actorID int64) (int, error) {
	s.lastSessionID = sessionID
	s.lastUserID = actorID
	return s.clearedCount, s.clearedErr
}

func newChatTestApp(service *stubChatService, userID string) *fiber.App {
	handler := NewSessionChatHandler(service, nil, "test-secret")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", "user")
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/api/v1/sessions/:id/messages", handler.SendMessage)
	app.Get("/api/v1/sessions/:id/messages", handler.GetMessages)
	app.Delete("/api/v1/sessions/:id/messages", handler.ClearChat)
	app.Post("/api/v1/sessions/:id/announcements", handler.SendAnnouncement)
	app.Post("/api/v1/sessions/:id/polls", handler.CreatePoll)
	app.Post("/api/v1/sessions/:id/questions", handler.AskQuestion)
	app.Get("/api/v1/sessions/:id/questions/top", handler.GetTopQuestions)
	app.Put("/api/v1/messages/:id", handler.EditMessage)
	app.Delete("/api/v1/messages/:id", handler.DeleteMessage)
	app.Post("/api/v1/messages/:id/reactions", handler.AddReaction)
	app.Delete("/api/v1/messages/:id/reactions", handler.RemoveReaction)
	app.Post("/api/v1/messages/:id/votes", handler.VotePoll)
	app.Post("/api/v1/messages/:id/close", handler.ClosePoll)
	app.Post("/api/v1/messages/:id/answers", handler.AnswerQuestion)
	app.Post("/api/v1/messages/:id/hide", handler.HideMessage)
	return app
}

func TestSendMessageForwardsReplyTarget(t *testing.T) {
	service := &stubChatService{
		messageResult: &models.SessionChatMessage{ID: 5, SessionID: 31, UserID: 42, Content: "on it"},
	}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/messages", strings.NewReader(`{
		"content": "on it",
		"reply_to_id": 3
	}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastSessionID != 31 || service.lastUserID != 42 {
		t.Fatalf("unexpected ids session=%d user=%d", service.lastSessionID, service.lastUserID)
	}
	if service.lastSendInput.ReplyToID == nil || *service.lastSendInput.ReplyToID != 3 {
		t.Fatalf("expected reply target 3, got %v", service.lastSendInput.ReplyToID)
	}
}

func TestSendMessageReturnsUnprocessableWhenChatDisabled(t *testing.T) {
	service := &stubChatService{messageErr: services.ErrFeatureDisabled}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/messages", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestGetMessagesParsesFilterQuery(t *testing.T) {
	service := &stubChatService{}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/sessions/31/messages?type=question&pinned=true&limit=50&since=2026-09-14T09:00:00Z", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastFilter.MessageType != "question" {
		t.Fatalf("unexpected type filter %q", service.lastFilter.MessageType)
	}
	if !service.lastFilter.PinnedOnly {
		t.Fatalf("expected pinned-only filter")
	}
	if service.lastFilter.Limit != 50 {
		t.Fatalf("expected limit 50, got %d", service.lastFilter.Limit)
	}
	if service.lastFilter.Since == nil {
		t.Fatalf("expected since filter set")
	}
}

func TestGetMessagesRejectsBadSinceTimestamp(t *testing.T) {
	service := &stubChatService{}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/31/messages?since=yesterday", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteMessageReturnsNoContent(t *testing.T) {
	service := &stubChatService{
		messageResult: &models.SessionChatMessage{ID: 5, MessageType: models.MessageTypeSystem},
	}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/messages/5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if service.lastMessageID != 5 {
		t.Fatalf("expected message id 5, got %d", service.lastMessageID)
	}
}

func TestAddReactionReturnsConflictForRepeat(t *testing.T) {
	service := &stubChatService{reactionErr: services.ErrAlreadyReacted}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/5/reactions", strings.NewReader(`{"emoji":"👍"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if service.lastEmoji != "👍" {
		t.Fatalf("expected forwarded emoji, got %q", service.lastEmoji)
	}
}

func TestCreatePollRejectsSingleOption(t *testing.T) {
	service := &stubChatService{}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/polls", strings.NewReader(`{
		"question": "Best time?",
		"options": ["morning"]
	}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreatePollForwardsAutoClose(t *testing.T) {
	service := &stubChatService{
		messageResult: &models.SessionChatMessage{ID: 9, MessageType: models.MessageTypePoll},
	}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/31/polls", strings.NewReader(`{
		"question": "Best time?",
		"options": ["morning", "evening"],
		"allow_multiple": true,
		"auto_close_minutes": 15
	}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !service.lastPollInput.AllowMultiple {
		t.Fatalf("expected allow_multiple forwarded")
	}
	if service.lastPollInput.AutoCloseMinutes == nil || *service.lastPollInput.AutoCloseMinutes != 15 {
		t.Fatalf("expected auto close 15, got %v", service.lastPollInput.AutoCloseMinutes)
	}
}

func TestVotePollReturnsBadRequestForInvalidVote(t *testing.T) {
	service := &stubChatService{messageErr: services.ErrInvalidPollVote}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/9/votes", strings.NewReader(`{"option_ids":["opt_1","opt_2"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(service.lastOptionIDs) != 2 {
		t.Fatalf("expected forwarded option ids, got %v", service.lastOptionIDs)
	}
}

func TestGetTopQuestionsParsesQuery(t *testing.T) {
	service := &stubChatService{topResult: []models.SessionChatMessage{{ID: 4}}}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/31/questions/top?include_answered=true&limit=3", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !service.lastIncludeAnswered {
		t.Fatalf("expected include_answered forwarded")
	}
	if service.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", service.lastLimit)
	}
}

func TestHideMessageForwardsReason(t *testing.T) {
	service := &stubChatService{
		messageResult: &models.SessionChatMessage{ID: 5, IsHidden: true},
	}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/5/hide", strings.NewReader(`{"reason":"spam"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastReason != "spam" {
		t.Fatalf("expected forwarded reason, got %q", service.lastReason)
	}
}

func TestClearChatReturnsClearedCount(t *testing.T) {
	service := &stubChatService{clearedCount: 12}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/31/messages", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cleared != 12 {
		t.Fatalf("expected 12 cleared, got %d", body.Cleared)
	}
}

func TestClearChatReturnsForbiddenForNonModerator(t *testing.T) {
	service := &stubChatService{clearedErr: services.ErrForbidden}
	app := newChatTestApp(service, "42")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/31/messages", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
