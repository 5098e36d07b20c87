package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

const (
	defaultMaxParticipants = 20
	defaultMinParticipants = 2
	defaultTimezone        = "UTC"
	defaultCurrency        = "USD"
	defaultSessionType     = "group_coaching"
)

// sessionLedger is the slice of the participant service the lifecycle
// transitions need. Its methods run inside the caller's per-session critical
// section.
type sessionLedger interface {
	FinalizeAttendance(ctx context.Context, session *models.GroupSession, endedAt time.Time) error
	ProcessRefunds(ctx context.Context, session *models.GroupSession) (int, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error)
}

// chatTeardown cancels a session's pending poll timers when the session
// leaves the live path.
type chatTeardown interface {
	TeardownSession(sessionID int64)
}

type GroupSessionService struct {
	sessions SessionStore
	locks    *SessionLocks
	meetings MeetingProvider
	notifier NotificationGateway
	ledger   sessionLedger
	chat     chatTeardown
}

func NewGroupSessionService(
	sessions SessionStore,
	locks *SessionLocks,
	meetings MeetingProvider,
	notifier NotificationGateway,
) *GroupSessionService {
	return &GroupSessionService{
		sessions: sessions,
		locks:    locks,
		meetings: meetings,
		notifier: notifier,
	}
}

// BindLedger and BindChat wire the cross-component collaborators after
// construction; the participant and chat services are built against the same
// session store and lock set.
func (s *GroupSessionService) BindLedger(ledger sessionLedger) { s.ledger = ledger }
func (s *GroupSessionService) BindChat(chat chatTeardown)      { s.chat = chat }

type CreateGroupSessionInput struct {
	Title             string
	Description       *string
	SessionType       string
	Category          *string
	Tags              []string
	ScheduledAt       time.Time
	DurationMinutes   int
	Timezone          string
	RecurrencePattern string
	RecurrenceEndDate *time.Time
	MaxParticipants   int
	MinParticipants   int
	WaitlistEnabled   *bool
	IsFree            bool
	Price             decimal.Decimal
	EarlyBirdPrice    *decimal.Decimal
	EarlyBirdDeadline *time.Time
	Currency          string
	ChatEnabled       *bool
	PollsEnabled      *bool
	QAEnabled         *bool
	RecordingEnabled  *bool
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

// CreateSession validates the input, fills defaults, and persists the
// session. A recurring session is expanded into independent non-recurring
// occurrences; the template is returned.
func (s *GroupSessionService) CreateSession(
	ctx context.Context,
	coachID int64,
	input CreateGroupSessionInput,
) (*models.GroupSession, error) {
	if coachID <= 0 || strings.TrimSpace(input.Title) == "" || input.DurationMinutes <= 0 {
		return nil, ErrInvalidInput
	}
	if input.ScheduledAt.IsZero() {
		return nil, ErrInvalidInput
	}
	if !input.IsFree && input.Price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidInput
	}

	pattern := input.RecurrencePattern
	if pattern == "" {
		pattern = models.RecurrenceNone
	}
	if pattern != models.RecurrenceNone {
		if _, ok := recurrenceIntervalDays[pattern]; !ok {
			return nil, ErrInvalidInput
		}
		if input.RecurrenceEndDate == nil || !input.RecurrenceEndDate.After(input.ScheduledAt) {
			return nil, ErrInvalidInput
		}
	}

	maxParticipants := input.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = defaultMaxParticipants
	}
	minParticipants := input.MinParticipants
	if minParticipants <= 0 {
		minParticipants = defaultMinParticipants
	}
	if minParticipants > maxParticipants {
		return nil, ErrInvalidInput
	}

	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = defaultTimezone
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	sessionType := strings.TrimSpace(input.SessionType)
	if sessionType == "" {
		sessionType = defaultSessionType
	}

	session := &models.GroupSession{
		CoachID:           coachID,
		Title:             strings.TrimSpace(input.Title),
		Description:       input.Description,
		SessionType:       sessionType,
		Category:          input.Category,
		Tags:              input.Tags,
		ScheduledAt:       input.ScheduledAt.UTC(),
		DurationMinutes:   input.DurationMinutes,
		Timezone:          timezone,
		RecurrencePattern: pattern,
		RecurrenceEndDate: input.RecurrenceEndDate,
		MaxParticipants:   maxParticipants,
		MinParticipants:   minParticipants,
		WaitlistEnabled:   boolOr(input.WaitlistEnabled, true),
		IsFree:            input.IsFree,
		Price:             input.Price,
		EarlyBirdPrice:    input.EarlyBirdPrice,
		EarlyBirdDeadline: input.EarlyBirdDeadline,
		Currency:          currency,
		Status:            models.SessionStatusScheduled,
		ChatEnabled:       boolOr(input.ChatEnabled, true),
		PollsEnabled:      boolOr(input.PollsEnabled, true),
		QAEnabled:         boolOr(input.QAEnabled, true),
		RecordingEnabled:  boolOr(input.RecordingEnabled, false),
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	for _, occurrence := range ExpandRecurrence(created) {
		occurrenceCopy := occurrence
		if _, err := s.sessions.Create(ctx, &occurrenceCopy); err != nil {
			return nil, fmt.Errorf("expand recurrence at %s: %w", occurrence.ScheduledAt, err)
		}
	}

	return created, nil
}

type UpdateGroupSessionInput struct {
	Title             *string
	Description       *string
	SessionType       *string
	Category          *string
	Tags              *[]string
	ScheduledAt       *time.Time
	DurationMinutes   *int
	Timezone          *string
	MaxParticipants   *int
	MinParticipants   *int
	WaitlistEnabled   *bool
	IsFree            *bool
	Price             *decimal.Decimal
	EarlyBirdPrice    *decimal.Decimal
	EarlyBirdDeadline *time.Time
	Currency          *string
	ChatEnabled       *bool
	PollsEnabled      *bool
	QAEnabled         *bool
	RecordingEnabled  *bool
}

// UpdateSession merges the provided fields into the session. Only the owning
// coach may update, and terminal sessions reject every edit.
func (s *GroupSessionService) UpdateSession(
	ctx context.Context,
	sessionID int64,
	coachID int64,
	input UpdateGroupSessionInput,
) (*models.GroupSession, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CoachID != coachID {
		return nil, ErrForbidden
	}
	if session.Status == models.SessionStatusCompleted || session.Status == models.SessionStatusCancelled {
		return nil, ErrInvalidStateTransition
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, ErrInvalidInput
		}
		session.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		session.Description = input.Description
	}
	if input.SessionType != nil {
		session.SessionType = *input.SessionType
	}
	if input.Category != nil {
		session.Category = input.Category
	}
	if input.Tags != nil {
		session.Tags = *input.Tags
	}
	if input.ScheduledAt != nil {
		session.ScheduledAt = input.ScheduledAt.UTC()
	}
	if input.DurationMinutes != nil {
		if *input.DurationMinutes <= 0 {
			return nil, ErrInvalidInput
		}
		session.DurationMinutes = *input.DurationMinutes
	}
	if input.Timezone != nil {
		session.Timezone = *input.Timezone
	}
	if input.MaxParticipants != nil {
		if *input.MaxParticipants < session.CurrentParticipants {
			return nil, ErrInvalidInput
		}
		session.MaxParticipants = *input.MaxParticipants
	}
	if input.MinParticipants != nil {
		session.MinParticipants = *input.MinParticipants
	}
	if input.WaitlistEnabled != nil {
		session.WaitlistEnabled = *input.WaitlistEnabled
	}
	if input.IsFree != nil {
		session.IsFree = *input.IsFree
	}
	if input.Price != nil {
		session.Price = *input.Price
	}
	if input.EarlyBirdPrice != nil {
		session.EarlyBirdPrice = input.EarlyBirdPrice
	}
	if input.EarlyBirdDeadline != nil {
		session.EarlyBirdDeadline = input.EarlyBirdDeadline
	}
	if input.Currency != nil {
		session.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}
	if input.ChatEnabled != nil {
		session.ChatEnabled = *input.ChatEnabled
	}
	if input.PollsEnabled != nil {
		session.PollsEnabled = *input.PollsEnabled
	}
	if input.QAEnabled != nil {
		session.QAEnabled = *input.QAEnabled
	}
	if input.RecordingEnabled != nil {
		session.RecordingEnabled = *input.RecordingEnabled
	}

	return s.sessions.Update(ctx, session)
}

func (s *GroupSessionService) GetSession(
	ctx context.Context,
	sessionID int64,
) (*models.GroupSession, error) {
	return s.getSession(ctx, sessionID)
}

func (s *GroupSessionService) ListSessions(
	ctx context.Context,
	filter repository.GroupSessionFilter,
	sort repository.GroupSessionSort,
	page repository.Page,
) ([]models.GroupSession, int, error) {
	if page.Number <= 0 {
		page.Number = 1
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}
	if invalid := lo.Filter(filter.Statuses, func(status string, _ int) bool {
		return !lo.Contains(sessionStatuses, status)
	}); len(invalid) > 0 {
		return nil, 0, ErrInvalidInput
	}
	return s.sessions.List(ctx, filter, sort, page)
}

var sessionStatuses = []string{
	models.SessionStatusScheduled,
	models.SessionStatusLive,
	models.SessionStatusCompleted,
	models.SessionStatusCancelled,
}

// DiscoverSessions lists upcoming scheduled sessions, soonest first.
func (s *GroupSessionService) DiscoverSessions(
	ctx context.Context,
	page repository.Page,
) ([]models.GroupSession, int, error) {
	now := time.Now().UTC()
	return s.ListSessions(
		ctx,
		repository.GroupSessionFilter{
			Statuses:      []string{models.SessionStatusScheduled},
			ScheduledFrom: &now,
		},
		repository.GroupSessionSort{Key: repository.SortByScheduledAt},
		page,
	)
}

// StartSession moves a scheduled session live: the meeting room is
// provisioned, credentials are stored, and every active participant is
// notified off the critical path.
func (s *GroupSessionService) StartSession(
	ctx context.Context,
	sessionID int64,
	coachID int64,
) (*models.GroupSession, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CoachID != coachID {
		return nil, ErrForbidden
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, ErrInvalidStateTransition
	}

	room, err := s.meetings.ProvisionRoom(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("provision meeting room: %w", err)
	}

	session.Status = models.SessionStatusLive
	session.MeetingID = &room.MeetingID
	session.MeetingURL = &room.URL
	session.MeetingPassword = &room.Password

	updated, err := s.sessions.Update(ctx, session)
	if err != nil {
		return nil, err
	}

	s.notifyParticipants(ctx, updated, NotifySessionStarted, map[string]any{
		"session_id":  updated.ID,
		"title":       updated.Title,
		"meeting_url": room.URL,
		"password":    room.Password,
	})

	return updated, nil
}

// EndSession completes a live session. Attendance is finalized before the
// status flips so a failure leaves the session live and retryable.
func (s *GroupSessionService) EndSession(
	ctx context.Context,
	sessionID int64,
	coachID int64,
) (*models.GroupSession, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CoachID != coachID {
		return nil, ErrForbidden
	}
	if session.Status != models.SessionStatusLive {
		return nil, ErrInvalidStateTransition
	}

	endedAt := time.Now().UTC()
	if err := s.ledger.FinalizeAttendance(ctx, session, endedAt); err != nil {
		return nil, fmt.Errorf("finalize attendance: %w", err)
	}

	session.Status = models.SessionStatusCompleted
	updated, err := s.sessions.Update(ctx, session)
	if err != nil {
		return nil, err
	}

	if s.chat != nil {
		s.chat.TeardownSession(sessionID)
	}
	s.notifyParticipants(ctx, updated, NotifySessionEnded, map[string]any{
		"session_id": updated.ID,
		"title":      updated.Title,
	})

	return updated, nil
}

// CancelSession cancels a scheduled or live session, refunds every completed
// payment, and reports how many refunds were processed.
func (s *GroupSessionService) CancelSession(
	ctx context.Context,
	sessionID int64,
	coachID int64,
	reason string,
) (*models.GroupSession, int, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if session.CoachID != coachID {
		return nil, 0, ErrForbidden
	}
	if session.Status != models.SessionStatusScheduled && session.Status != models.SessionStatusLive {
		return nil, 0, ErrInvalidStateTransition
	}

	refundCount, err := s.ledger.ProcessRefunds(ctx, session)
	if err != nil {
		return nil, 0, fmt.Errorf("process refunds: %w", err)
	}

	session.Status = models.SessionStatusCancelled
	updated, err := s.sessions.Update(ctx, session)
	if err != nil {
		return nil, 0, err
	}

	if s.chat != nil {
		s.chat.TeardownSession(sessionID)
	}
	s.notifyParticipants(ctx, updated, NotifySessionCancelled, map[string]any{
		"session_id":   updated.ID,
		"title":        updated.Title,
		"reason":       reason,
		"refund_count": refundCount,
	})

	return updated, refundCount, nil
}

func (s *GroupSessionService) getSession(
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

func (s *GroupSessionService) notifyParticipants(
	ctx context.Context,
	session *models.GroupSession,
	eventType string,
	payload map[string]any,
) {
	if s.ledger == nil {
		return
	}
	participants, err := s.ledger.ListParticipants(ctx, session.ID)
	if err != nil {
		log.Printf("list participants for session %d notification fan-out: %v", session.ID, err)
		return
	}
	for _, participant := range participants {
		if participant.Status == models.ParticipantStatusCancelled {
			continue
		}
		notifyAsync(s.notifier, participant.UserID, eventType, payload)
	}
}
