package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

type stubMeetingProvider struct {
	calls int
	err   error
}

func (m *stubMeetingProvider) ProvisionRoom(_ context.Context, sessionID int64) (*models.MeetingRoom, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.MeetingRoom{
		MeetingID: "room-1",
		URL:       "https://meet.test/room-1",
		Password:  "secret",
	}, nil
}

type stubNotifier struct {
	mu     sync.Mutex
	events []string
	users  []int64
}

func (n *stubNotifier) Notify(_ context.Context, userID int64, eventType string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	n.users = append(n.users, userID)
	return nil
}

func (n *stubNotifier) received(eventType string, userID int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, event := range n.events {
		if event == eventType && n.users[i] == userID {
			return true
		}
	}
	return false
}

type stubPaymentGateway struct {
	mu        sync.Mutex
	charges   int
	refunds   []string
	chargeErr error
	refundErr error
}

func (g *stubPaymentGateway) Charge(_ context.Context, userID int64, _ decimal.Decimal, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	g.charges++
	return "pay_test", nil
}

func (g *stubPaymentGateway) Refund(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, ref)
	return g.refundErr
}

type fixture struct {
	sessions     *memSessionStore
	participants *memParticipantStore
	messages     *memChatMessageStore
	payments     *stubPaymentGateway
	notifier     *stubNotifier
	meetings     *stubMeetingProvider
	bus          *ChatEventBus

	sessionSvc     *GroupSessionService
	participantSvc *ParticipantService
	chatSvc        *SessionChatService
}

func newFixture() *fixture {
	f := &fixture{
		sessions:     newMemSessionStore(),
		participants: newMemParticipantStore(),
		messages:     newMemChatMessageStore(),
		payments:     &stubPaymentGateway{},
		notifier:     &stubNotifier{},
		meetings:     &stubMeetingProvider{},
		bus:          NewChatEventBus(),
	}
	locks := NewSessionLocks()
	f.sessionSvc = NewGroupSessionService(f.sessions, locks, f.meetings, f.notifier)
	f.participantSvc = NewParticipantService(f.sessions, f.participants, locks, f.payments, f.notifier)
	f.chatSvc = NewSessionChatService(f.sessions, f.participants, f.messages, f.bus)
	f.chatSvc.BindEngagement(f.participantSvc)
	f.sessionSvc.BindLedger(f.participantSvc)
	f.sessionSvc.BindChat(f.chatSvc)
	return f
}

func (f *fixture) createSession(t *testing.T, mutate func(*CreateGroupSessionInput)) *models.GroupSession {
	t.Helper()
	input := CreateGroupSessionInput{
		Title:           "Mindset reset",
		ScheduledAt:     time.Now().UTC().Add(24 * time.Hour),
		DurationMinutes: 60,
		MaxParticipants: 3,
		MinParticipants: 1,
		IsFree:          true,
	}
	if mutate != nil {
		mutate(&input)
	}
	session, err := f.sessionSvc.CreateSession(context.Background(), 1, input)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestCreateSessionDefaults(t *testing.T) {
	f := newFixture()
	session := f.createSession(t, func(input *CreateGroupSessionInput) {
		input.MaxParticipants = 0
		input.MinParticipants = 0
	})

	if session.Status != models.SessionStatusScheduled {
		t.Errorf("status = %q, want scheduled", session.Status)
	}
	if session.MaxParticipants != defaultMaxParticipants {
		t.Errorf("max participants = %d, want %d", session.MaxParticipants, defaultMaxParticipants)
	}
	if session.Timezone != defaultTimezone || session.Currency != defaultCurrency {
		t.Errorf("defaults not applied: tz=%q currency=%q", session.Timezone, session.Currency)
	}
	if !session.ChatEnabled || !session.PollsEnabled || !session.QAEnabled {
		t.Error("feature toggles should default on")
	}
	if session.RecordingEnabled {
		t.Error("recording should default off")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	base := CreateGroupSessionInput{
		Title:           "Valid",
		ScheduledAt:     time.Now().UTC().Add(time.Hour),
		DurationMinutes: 60,
		IsFree:          true,
	}

	cases := []struct {
		name   string
		mutate func(*CreateGroupSessionInput)
	}{
		{"empty title", func(i *CreateGroupSessionInput) { i.Title = "  " }},
		{"zero duration", func(i *CreateGroupSessionInput) { i.DurationMinutes = 0 }},
		{"paid without price", func(i *CreateGroupSessionInput) { i.IsFree = false }},
		{"min above max", func(i *CreateGroupSessionInput) {
			i.MaxParticipants = 2
			i.MinParticipants = 5
		}},
		{"unknown recurrence", func(i *CreateGroupSessionInput) { i.RecurrencePattern = "yearly" }},
		{"recurrence without end", func(i *CreateGroupSessionInput) { i.RecurrencePattern = models.RecurrenceWeekly }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := base
			tc.mutate(&input)
			if _, err := f.sessionSvc.CreateSession(ctx, 1, input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateRecurringSessionExpands(t *testing.T) {
	f := newFixture()
	start := time.Now().UTC().Add(24 * time.Hour)
	end := start.AddDate(0, 0, 21)
	template := f.createSession(t, func(input *CreateGroupSessionInput) {
		input.RecurrencePattern = models.RecurrenceWeekly
		input.RecurrenceEndDate = &end
		input.ScheduledAt = start
	})

	sessions, total, err := f.sessionSvc.ListSessions(
		context.Background(),
		repository.GroupSessionFilter{CoachID: 1},
		repository.GroupSessionSort{Key: repository.SortByScheduledAt},
		repository.Page{Number: 1, Limit: 10},
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want template + 3 occurrences", total)
	}
	for _, session := range sessions {
		if session.ID == template.ID {
			continue
		}
		if session.RecurrencePattern != models.RecurrenceNone {
			t.Errorf("occurrence %d kept pattern %q", session.ID, session.RecurrencePattern)
		}
	}
}

func TestUpdateSessionOwnershipAndTerminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)

	title := "Renamed"
	if _, err := f.sessionSvc.UpdateSession(ctx, session.ID, 99, UpdateGroupSessionInput{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign coach err = %v, want ErrForbidden", err)
	}

	updated, err := f.sessionSvc.UpdateSession(ctx, session.ID, 1, UpdateGroupSessionInput{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("title = %q", updated.Title)
	}

	if _, _, err := f.sessionSvc.CancelSession(ctx, session.ID, 1, "coach sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.sessionSvc.UpdateSession(ctx, session.ID, 1, UpdateGroupSessionInput{Title: &title}); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("terminal update err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestUpdateSessionCapacityBelowRegistered(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)

	for _, userID := range []int64{10, 11} {
		if _, err := f.participantSvc.Register(ctx, session.ID, userID); err != nil {
			t.Fatalf("register %d: %v", userID, err)
		}
	}

	lower := 1
	if _, err := f.sessionSvc.UpdateSession(ctx, session.ID, 1, UpdateGroupSessionInput{MaxParticipants: &lower}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestListSessionsRejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	_, _, err := f.sessionSvc.ListSessions(
		context.Background(),
		repository.GroupSessionFilter{Statuses: []string{"archived"}},
		repository.GroupSessionSort{},
		repository.Page{},
	)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestStartSessionProvisionsRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)

	started, err := f.sessionSvc.StartSession(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != models.SessionStatusLive {
		t.Fatalf("status = %q, want live", started.Status)
	}
	if started.MeetingURL == nil || started.MeetingID == nil || started.MeetingPassword == nil {
		t.Fatal("meeting credentials not stored")
	}
	if f.meetings.calls != 1 {
		t.Fatalf("provision calls = %d", f.meetings.calls)
	}

	if _, err := f.sessionSvc.StartSession(ctx, session.ID, 1); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("double start err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestStartSessionProvisionFailureKeepsScheduled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)
	f.meetings.err = errors.New("vendor down")

	if _, err := f.sessionSvc.StartSession(ctx, session.ID, 1); err == nil {
		t.Fatal("expected provisioning error")
	}
	current, err := f.sessionSvc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != models.SessionStatusScheduled {
		t.Fatalf("status = %q, want scheduled after failed start", current.Status)
	}
}

func TestEndSessionFinalizesAttendance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)

	if _, err := f.participantSvc.Register(ctx, session.ID, 10); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.participantSvc.Register(ctx, session.ID, 11); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.sessionSvc.StartSession(ctx, session.ID, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.participantSvc.RecordJoin(ctx, session.ID, 10); err != nil {
		t.Fatalf("join: %v", err)
	}

	ended, err := f.sessionSvc.EndSession(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %q, want completed", ended.Status)
	}

	participants, err := f.participantSvc.ListParticipants(ctx, session.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	for _, p := range participants {
		switch p.UserID {
		case 10:
			if p.Status != models.ParticipantStatusAttended {
				t.Errorf("joiner status = %q, want attended", p.Status)
			}
			if p.LeftAt == nil {
				t.Error("joiner missing synthetic leave")
			}
		case 11:
			if p.Status != models.ParticipantStatusNoShow {
				t.Errorf("absentee status = %q, want no_show", p.Status)
			}
		}
	}

	if _, err := f.sessionSvc.EndSession(ctx, session.ID, 1); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("double end err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestCancelSessionRefundsCompletedPayments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, func(input *CreateGroupSessionInput) {
		input.IsFree = false
		input.Price = decimal.NewFromInt(50)
	})

	if _, err := f.participantSvc.Register(ctx, session.ID, 10); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.participantSvc.MarkPaymentCompleted(ctx, session.ID, 10, "pay_test"); err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if _, err := f.participantSvc.Register(ctx, session.ID, 11); err != nil {
		t.Fatalf("register: %v", err)
	}

	cancelled, refunds, err := f.sessionSvc.CancelSession(ctx, session.ID, 1, "venue lost")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}
	if refunds != 1 {
		t.Fatalf("refunds = %d, want 1 (only completed payments refund)", refunds)
	}
	if len(f.payments.refunds) != 1 || f.payments.refunds[0] != "pay_test" {
		t.Fatalf("gateway refunds = %v", f.payments.refunds)
	}

	if _, err := f.participantSvc.Register(ctx, session.ID, 12); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("register on cancelled err = %v, want ErrRegistrationClosed", err)
	}
}

func TestCancelCompletedSessionRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.createSession(t, nil)

	if _, err := f.sessionSvc.StartSession(ctx, session.ID, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.sessionSvc.EndSession(ctx, session.ID, 1); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, _, err := f.sessionSvc.CancelSession(ctx, session.ID, 1, "too late"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
}
