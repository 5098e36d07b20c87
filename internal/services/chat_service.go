package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

// engagementRecorder lets the chat layer feed the participant ledger's
// engagement counters without owning participant state.
type engagementRecorder interface {
	RecordEngagement(ctx context.Context, sessionID, userID int64, kind string)
}

// SessionChatService owns a session's chat stream: messages, reactions,
// polls, Q&A, and moderation. Mutations on one message are serialized by a
// message-keyed lock; messages in different sessions never contend.
type SessionChatService struct {
	sessions     SessionStore
	participants ParticipantStore
	messages     ChatMessageStore
	events       *ChatEventBus
	engagement   engagementRecorder

	messageLocks *keyedMutex

	timersMu sync.Mutex
	timers   map[int64]*pollTimer
}

type pollTimer struct {
	sessionID int64
	timer     *time.Timer
}

func NewSessionChatService(
	sessions SessionStore,
	participants ParticipantStore,
	messages ChatMessageStore,
	events *ChatEventBus,
) *SessionChatService {
	return &SessionChatService{
		sessions:     sessions,
		participants: participants,
		messages:     messages,
		events:       events,
		messageLocks: newKeyedMutex(),
		timers:       make(map[int64]*pollTimer),
	}
}

// BindEngagement wires the participant ledger's engagement counters.
func (s *SessionChatService) BindEngagement(recorder engagementRecorder) {
	s.engagement = recorder
}

// Subscribe attaches a handler to one session's event stream and returns the
// unsubscribe closure. Only currently registered handlers receive events;
// there is no backlog for late subscribers.
func (s *SessionChatService) Subscribe(sessionID int64, handler ChatEventHandler) func() {
	return s.events.Subscribe(sessionID, handler)
}

type SendMessageInput struct {
	Content     string
	ReplyToID   *int64
	Attachments []models.Attachment
}

// SendMessage appends a text message. A reply inherits the root message's
// thread; a fresh message starts its own.
func (s *SessionChatService) SendMessage(
	ctx context.Context,
	sessionID int64,
	userID int64,
	input SendMessageInput,
) (*models.SessionChatMessage, error) {
	return s.appendMessage(ctx, sessionID, userID, models.MessageTypeText, input)
}

// SendAnnouncement posts a coach/moderator announcement.
func (s *SessionChatService) SendAnnouncement(
	ctx context.Context,
	sessionID int64,
	userID int64,
	content string,
) (*models.SessionChatMessage, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.isModerator(ctx, session, userID) {
		return nil, ErrForbidden
	}
	return s.appendMessage(ctx, sessionID, userID, models.MessageTypeAnnouncement, SendMessageInput{Content: content})
}

// AskQuestion posts a Q&A question into the stream.
func (s *SessionChatService) AskQuestion(
	ctx context.Context,
	sessionID int64,
	userID int64,
	content string,
) (*models.SessionChatMessage, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.QAEnabled {
		return nil, ErrFeatureDisabled
	}
	return s.appendMessage(ctx, sessionID, userID, models.MessageTypeQuestion, SendMessageInput{Content: content})
}

func (s *SessionChatService) appendMessage(
	ctx context.Context,
	sessionID int64,
	userID int64,
	messageType string,
	input SendMessageInput,
) (*models.SessionChatMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" || userID <= 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.ChatEnabled {
		return nil, ErrFeatureDisabled
	}

	message := &models.SessionChatMessage{
		SessionID:   sessionID,
		UserID:      userID,
		MessageType: messageType,
		Content:     content,
		Attachments: input.Attachments,
	}

	if input.ReplyToID != nil {
		parent, err := s.getMessage(ctx, *input.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.SessionID != sessionID {
			return nil, ErrInvalidInput
		}
		message.ReplyToID = input.ReplyToID
		if parent.ThreadID != nil {
			message.ThreadID = parent.ThreadID
		} else {
			message.ThreadID = &parent.ID
		}
	}

	created, err := s.messages.Create(ctx, message)
	if err != nil {
		return nil, err
	}

	s.emitMessage(created)
	if s.engagement != nil {
		kind := EngagementMessage
		if messageType == models.MessageTypeQuestion {
			kind = EngagementQuestion
		}
		s.engagement.RecordEngagement(ctx, sessionID, userID, kind)
	}
	return created, nil
}

// EditMessage lets the author amend a message's content.
func (s *SessionChatService) EditMessage(
	ctx context.Context,
	messageID int64,
	userID int64,
	content string,
) (*models.SessionChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.UserID != userID {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	message.Content = content
	message.EditedAt = &now

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	s.emitMessage(updated)
	return updated, nil
}

// DeleteMessage tombstones a message. The author may always delete; anyone
// else needs moderator standing.
func (s *SessionChatService) DeleteMessage(
	ctx context.Context,
	messageID int64,
	actorID int64,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.DeletedAt != nil {
		return message, nil
	}
	if message.UserID != actorID {
		session, err := s.getSession(ctx, message.SessionID)
		if err != nil {
			return nil, err
		}
		if !s.isModerator(ctx, session, actorID) {
			return nil, ErrForbidden
		}
	}

	now := time.Now().UTC()
	message.DeletedAt = &now

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	s.cancelPollTimer(messageID)
	s.events.Publish(ChatEvent{
		Type:      ChatEventMessageDeleted,
		SessionID: updated.SessionID,
		MessageID: updated.ID,
	})
	return updated, nil
}

// AddReaction records one user's emoji on a message. Reacting twice with the
// same emoji fails without changing the aggregate.
func (s *SessionChatService) AddReaction(
	ctx context.Context,
	messageID int64,
	userID int64,
	emoji string,
) (*ReactionUpdate, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || userID <= 0 {
		return nil, ErrInvalidInput
	}

	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.Reactions == nil {
		message.Reactions = make(map[string]*models.Reaction)
	}
	reaction, ok := message.Reactions[emoji]
	if !ok {
		reaction = &models.Reaction{}
		message.Reactions[emoji] = reaction
	}
	if lo.Contains(reaction.UserIDs, userID) {
		return nil, ErrAlreadyReacted
	}

	reaction.UserIDs = append(reaction.UserIDs, userID)
	reaction.Count = len(reaction.UserIDs)

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	return s.emitReaction(updated, emoji), nil
}

// RemoveReaction withdraws a user's emoji. Removing a reaction that was
// never added is a no-op.
func (s *SessionChatService) RemoveReaction(
	ctx context.Context,
	messageID int64,
	userID int64,
	emoji string,
) (*ReactionUpdate, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	reaction, ok := message.Reactions[emoji]
	if !ok || !lo.Contains(reaction.UserIDs, userID) {
		return s.reactionAggregate(message, emoji), nil
	}

	reaction.UserIDs = lo.Filter(reaction.UserIDs, func(id int64, _ int) bool { return id != userID })
	reaction.Count = len(reaction.UserIDs)
	if reaction.Count == 0 {
		delete(message.Reactions, emoji)
	}

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	return s.emitReaction(updated, emoji), nil
}

type CreatePollInput struct {
	Question         string
	Options          []string
	AllowMultiple    bool
	Anonymous        bool
	ShowResults      bool
	AutoCloseMinutes *int
}

// CreatePoll posts a poll message with zeroed options and, when requested,
// arms the cancellable auto-close timer.
func (s *SessionChatService) CreatePoll(
	ctx context.Context,
	sessionID int64,
	userID int64,
	input CreatePollInput,
) (*models.SessionChatMessage, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" || len(input.Options) < 2 {
		return nil, ErrInvalidInput
	}
	if input.AutoCloseMinutes != nil && *input.AutoCloseMinutes <= 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.PollsEnabled {
		return nil, ErrFeatureDisabled
	}

	options := make([]models.PollOption, 0, len(input.Options))
	for i, text := range input.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrInvalidInput
		}
		options = append(options, models.PollOption{
			ID:   fmt.Sprintf("opt_%d", i+1),
			Text: text,
		})
	}

	message := &models.SessionChatMessage{
		SessionID:   sessionID,
		UserID:      userID,
		MessageType: models.MessageTypePoll,
		Content:     question,
		Poll: &models.PollData{
			Question:         question,
			Options:          options,
			Status:           models.PollStatusActive,
			AllowMultiple:    input.AllowMultiple,
			Anonymous:        input.Anonymous,
			ShowResults:      input.ShowResults,
			AutoCloseMinutes: input.AutoCloseMinutes,
		},
	}

	created, err := s.messages.Create(ctx, message)
	if err != nil {
		return nil, err
	}

	if input.AutoCloseMinutes != nil {
		s.armPollTimer(created.ID, sessionID, time.Duration(*input.AutoCloseMinutes)*time.Minute)
	}

	s.emitMessage(created)
	return created, nil
}

// VotePoll records a ballot. Multiple options need allowMultiple; a
// single-choice re-vote moves the ballot instead of stacking it, and voting
// the same option again changes nothing.
func (s *SessionChatService) VotePoll(
	ctx context.Context,
	messageID int64,
	userID int64,
	optionIDs []string,
) (*models.SessionChatMessage, error) {
	if len(optionIDs) == 0 || userID <= 0 {
		return nil, ErrInvalidInput
	}

	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	poll := message.Poll
	if poll == nil {
		return nil, ErrInvalidPollVote
	}
	if poll.Status != models.PollStatusActive {
		return nil, ErrInvalidPollVote
	}
	if len(optionIDs) > 1 && !poll.AllowMultiple {
		return nil, ErrInvalidPollVote
	}
	for _, optionID := range optionIDs {
		if poll.Option(optionID) == nil {
			return nil, ErrInvalidPollVote
		}
	}

	changed := false
	if !poll.AllowMultiple {
		// Single choice: clear any previous ballot before recording the new one.
		for i := range poll.Options {
			option := &poll.Options[i]
			if option.ID == optionIDs[0] {
				continue
			}
			if lo.Contains(option.VoterIDs, userID) {
				option.VoterIDs = lo.Filter(option.VoterIDs, func(id int64, _ int) bool { return id != userID })
				option.VoteCount = len(option.VoterIDs)
				changed = true
			}
		}
	}
	for _, optionID := range optionIDs {
		option := poll.Option(optionID)
		if !lo.Contains(option.VoterIDs, userID) {
			option.VoterIDs = append(option.VoterIDs, userID)
			option.VoteCount = len(option.VoterIDs)
			changed = true
		}
	}

	if !changed {
		return message, nil
	}

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	s.emitPollUpdate(updated)
	if s.engagement != nil {
		s.engagement.RecordEngagement(ctx, updated.SessionID, userID, EngagementPollVote)
	}
	return updated, nil
}

// ClosePoll closes the poll ahead of (or instead of) its timer. Only the
// poll's author may close it; closing an already-closed poll is a no-op.
func (s *SessionChatService) ClosePoll(
	ctx context.Context,
	messageID int64,
	actorID int64,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Poll == nil {
		return nil, ErrInvalidPollVote
	}
	if message.UserID != actorID {
		return nil, ErrForbidden
	}
	return s.closePollLocked(ctx, message)
}

func (s *SessionChatService) closePollLocked(
	ctx context.Context,
	message *models.SessionChatMessage,
) (*models.SessionChatMessage, error) {
	s.cancelPollTimer(message.ID)
	if message.Poll.Status == models.PollStatusClosed {
		return message, nil
	}

	now := time.Now().UTC()
	message.Poll.Status = models.PollStatusClosed
	message.Poll.ClosedAt = &now

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	s.emitPollUpdate(updated)
	return updated, nil
}

func (s *SessionChatService) armPollTimer(messageID, sessionID int64, after time.Duration) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.timers[messageID] = &pollTimer{
		sessionID: sessionID,
		timer: time.AfterFunc(after, func() {
			s.autoClosePoll(messageID)
		}),
	}
}

func (s *SessionChatService) cancelPollTimer(messageID int64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if pending, ok := s.timers[messageID]; ok {
		pending.timer.Stop()
		delete(s.timers, messageID)
	}
}

// autoClosePoll fires when an auto-close timer elapses. A poll already
// closed by hand is left alone.
func (s *SessionChatService) autoClosePoll(messageID int64) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	ctx := context.Background()
	message, err := s.getMessage(ctx, messageID)
	if err != nil || message.Poll == nil || message.DeletedAt != nil {
		s.cancelPollTimer(messageID)
		return
	}
	if _, err := s.closePollLocked(ctx, message); err != nil {
		log.Printf("auto-close poll %d: %v", messageID, err)
	}
}

// TeardownSession cancels every pending poll timer for a session. Called
// when the session ends or is cancelled so a stale timer can never fire
// afterwards.
func (s *SessionChatService) TeardownSession(sessionID int64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for messageID, pending := range s.timers {
		if pending.sessionID == sessionID {
			pending.timer.Stop()
			delete(s.timers, messageID)
		}
	}
}

// AnswerQuestion posts an answer linked to the question and marks the
// question answered.
func (s *SessionChatService) AnswerQuestion(
	ctx context.Context,
	questionID int64,
	userID int64,
	content string,
) (*models.SessionChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	s.messageLocks.Lock(questionID)
	defer s.messageLocks.Unlock(questionID)

	question, err := s.getVisibleMessage(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.MessageType != models.MessageTypeQuestion {
		return nil, ErrInvalidInput
	}

	threadID := question.ThreadID
	if threadID == nil {
		threadID = &question.ID
	}
	answer, err := s.messages.Create(ctx, &models.SessionChatMessage{
		SessionID:   question.SessionID,
		UserID:      userID,
		MessageType: models.MessageTypeAnswer,
		Content:     content,
		ReplyToID:   &question.ID,
		ThreadID:    threadID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	question.IsAnswered = true
	question.AnsweredBy = &userID
	question.AnsweredAt = &now
	updatedQuestion, err := s.messages.Update(ctx, question)
	if err != nil {
		return nil, err
	}

	s.emitMessage(answer)
	s.emitMessage(updatedQuestion)
	return answer, nil
}

// UpvoteQuestion adds one user's upvote; repeating it changes nothing.
func (s *SessionChatService) UpvoteQuestion(
	ctx context.Context,
	questionID int64,
	userID int64,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(questionID)
	defer s.messageLocks.Unlock(questionID)

	question, err := s.getVisibleMessage(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.MessageType != models.MessageTypeQuestion {
		return nil, ErrInvalidInput
	}
	if lo.Contains(question.UpvoterIDs, userID) {
		return question, nil
	}

	question.UpvoterIDs = append(question.UpvoterIDs, userID)
	question.UpvoteCount = len(question.UpvoterIDs)
	return s.messages.Update(ctx, question)
}

// GetTopQuestions ranks questions by upvotes, unanswered first by default.
func (s *SessionChatService) GetTopQuestions(
	ctx context.Context,
	sessionID int64,
	includeAnswered bool,
	limit int,
) ([]models.SessionChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	questions, err := s.messages.ListBySession(ctx, sessionID, repository.ChatMessageFilter{
		QuestionsOnly:  true,
		UnansweredOnly: !includeAnswered,
	})
	if err != nil {
		return nil, err
	}

	// Stable by creation order within equal upvote counts.
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].UpvoteCount > questions[j].UpvoteCount
	})
	if len(questions) > limit {
		questions = questions[:limit]
	}
	return questions, nil
}

// PinMessage and UnpinMessage are moderator actions surfaced to subscribers.
func (s *SessionChatService) PinMessage(
	ctx context.Context,
	messageID int64,
	actorID int64,
) (*models.SessionChatMessage, error) {
	return s.setPinned(ctx, messageID, actorID, true)
}

func (s *SessionChatService) UnpinMessage(
	ctx context.Context,
	messageID int64,
	actorID int64,
) (*models.SessionChatMessage, error) {
	return s.setPinned(ctx, messageID, actorID, false)
}

func (s *SessionChatService) setPinned(
	ctx context.Context,
	messageID int64,
	actorID int64,
	pinned bool,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, message.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.isModerator(ctx, session, actorID) {
		return nil, ErrForbidden
	}
	if message.IsPinned == pinned {
		return message, nil
	}

	message.IsPinned = pinned
	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ChatEvent{
		Type:      ChatEventMessagePinned,
		SessionID: updated.SessionID,
		MessageID: updated.ID,
		Pinned:    &pinned,
	})
	return updated, nil
}

// HideMessage makes a message invisible to subscribers while keeping the row
// for audit. Subscribers receive a deletion event so they stop rendering it.
func (s *SessionChatService) HideMessage(
	ctx context.Context,
	messageID int64,
	actorID int64,
	reason string,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, message.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.isModerator(ctx, session, actorID) {
		return nil, ErrForbidden
	}

	message.IsHidden = true
	if reason = strings.TrimSpace(reason); reason != "" {
		message.HiddenReason = &reason
	}

	updated, err := s.messages.Update(ctx, message)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ChatEvent{
		Type:      ChatEventMessageDeleted,
		SessionID: updated.SessionID,
		MessageID: updated.ID,
	})
	return updated, nil
}

// HighlightMessage flags a message for emphasis in clients.
func (s *SessionChatService) HighlightMessage(
	ctx context.Context,
	messageID int64,
	actorID int64,
) (*models.SessionChatMessage, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	message, err := s.getVisibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, message.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.isModerator(ctx, session, actorID) {
		return nil, ErrForbidden
	}

	message.IsHighlighted = true
	return s.messages.Update(ctx, message)
}

// GetMessages returns the visible history for a session.
func (s *SessionChatService) GetMessages(
	ctx context.Context,
	sessionID int64,
	filter repository.ChatMessageFilter,
) ([]models.SessionChatMessage, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 100
	}
	messages, err := s.messages.ListBySession(ctx, sessionID, filter)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		redactMessage(&messages[i])
	}
	return messages, nil
}

// ClearSessionChat tombstones a session's full history.
func (s *SessionChatService) ClearSessionChat(
	ctx context.Context,
	sessionID int64,
	actorID int64,
) (int, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !s.isModerator(ctx, session, actorID) {
		return 0, ErrForbidden
	}
	s.TeardownSession(sessionID)
	return s.messages.SoftDeleteBySession(ctx, sessionID)
}

func (s *SessionChatService) emitMessage(message *models.SessionChatMessage) {
	event := *message
	redactMessage(&event)
	s.events.Publish(ChatEvent{
		Type:      ChatEventMessage,
		SessionID: message.SessionID,
		MessageID: message.ID,
		Message:   &event,
	})
}

func (s *SessionChatService) emitPollUpdate(message *models.SessionChatMessage) {
	snapshot := redactPoll(message.Poll)
	s.events.Publish(ChatEvent{
		Type:      ChatEventPollUpdate,
		SessionID: message.SessionID,
		MessageID: message.ID,
		Poll:      snapshot,
	})
}

func (s *SessionChatService) emitReaction(
	message *models.SessionChatMessage,
	emoji string,
) *ReactionUpdate {
	aggregate := s.reactionAggregate(message, emoji)
	s.events.Publish(ChatEvent{
		Type:      ChatEventReaction,
		SessionID: message.SessionID,
		MessageID: message.ID,
		Reaction:  aggregate,
	})
	return aggregate
}

func (s *SessionChatService) reactionAggregate(
	message *models.SessionChatMessage,
	emoji string,
) *ReactionUpdate {
	aggregate := &ReactionUpdate{MessageID: message.ID, Emoji: emoji}
	if reaction, ok := message.Reactions[emoji]; ok {
		aggregate.Count = reaction.Count
		aggregate.UserIDs = reaction.UserIDs
	}
	return aggregate
}

// redactMessage strips voter identities from anonymous polls before the
// message leaves the service.
func redactMessage(message *models.SessionChatMessage) {
	if message.Poll != nil {
		message.Poll = redactPoll(message.Poll)
	}
}

func redactPoll(poll *models.PollData) *models.PollData {
	snapshot := *poll
	snapshot.Options = make([]models.PollOption, len(poll.Options))
	copy(snapshot.Options, poll.Options)
	if poll.Anonymous {
		for i := range snapshot.Options {
			snapshot.Options[i].VoterIDs = nil
		}
	}
	return &snapshot
}

// isModerator grants moderation to the owning coach or to a participant
// holding the host or moderator role.
func (s *SessionChatService) isModerator(
	ctx context.Context,
	session *models.GroupSession,
	userID int64,
) bool {
	if userID == session.CoachID {
		return true
	}
	participant, err := s.participants.GetActive(ctx, session.ID, userID)
	if err != nil {
		return false
	}
	return participant.Role == models.ParticipantRoleHost ||
		participant.Role == models.ParticipantRoleModerator
}

func (s *SessionChatService) getSession(
	ctx context.Context,
	sessionID int64,
) (*models.GroupSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionChatService) getMessage(
	ctx context.Context,
	messageID int64,
) (*models.SessionChatMessage, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return message, nil
}

func (s *SessionChatService) getVisibleMessage(
	ctx context.Context,
	messageID int64,
) (*models.SessionChatMessage, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !message.Visible() {
		return nil, ErrMessageNotFound
	}
	return message, nil
}
