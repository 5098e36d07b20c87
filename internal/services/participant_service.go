package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

// ParticipantService owns the per-session participant ledger: registration
// admission, the waitlist, attendance, payments, and ratings. Everything that
// touches capacity runs under the shared per-session lock.
type ParticipantService struct {
	sessions     SessionStore
	participants ParticipantStore
	locks        *SessionLocks
	payments     PaymentGateway
	notifier     NotificationGateway
}

func NewParticipantService(
	sessions SessionStore,
	participants ParticipantStore,
	locks *SessionLocks,
	payments PaymentGateway,
	notifier NotificationGateway,
) *ParticipantService {
	return &ParticipantService{
		sessions:     sessions,
		participants: participants,
		locks:        locks,
		payments:     payments,
		notifier:     notifier,
	}
}

// chargeAmount resolves the amount due at registration time: the early-bird
// price applies only while its deadline is still ahead.
func chargeAmount(session *models.GroupSession, now time.Time) decimal.Decimal {
	if session.IsFree {
		return decimal.Zero
	}
	if session.EarlyBirdPrice != nil && session.EarlyBirdDeadline != nil &&
		now.Before(*session.EarlyBirdDeadline) {
		return *session.EarlyBirdPrice
	}
	return session.Price
}

// Register admits a user to a scheduled session. When capacity is exhausted
// the user joins the waitlist if one is enabled, otherwise the registration
// is rejected. For paid sessions a charge is initiated and a charge failure
// aborts the admission.
func (s *ParticipantService) Register(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.RegistrationResult, error) {
	if sessionID <= 0 || userID <= 0 {
		return nil, ErrInvalidInput
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, ErrRegistrationClosed
	}

	if _, err := s.participants.GetActive(ctx, sessionID, userID); err == nil {
		return nil, ErrDuplicateRegistration
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	amount := chargeAmount(session, time.Now().UTC())
	paymentStatus := models.PaymentStatusNotRequired
	if !session.IsFree {
		paymentStatus = models.PaymentStatusPending
	}

	role := models.ParticipantRoleParticipant
	if userID == session.CoachID {
		role = models.ParticipantRoleHost
	}

	participant := &models.Participant{
		SessionID:     sessionID,
		UserID:        userID,
		Role:          role,
		PaymentStatus: paymentStatus,
		PaymentAmount: amount,
	}

	switch {
	case session.CurrentParticipants < session.MaxParticipants:
		participant.Status = models.ParticipantStatusRegistered
		if !session.IsFree {
			ref, err := s.payments.Charge(ctx, userID, amount, session.Currency)
			if err != nil {
				return nil, fmt.Errorf("initiate charge: %w", err)
			}
			participant.PaymentRef = &ref
		}

		created, err := s.participants.Create(ctx, participant)
		if err != nil {
			return nil, err
		}

		session.CurrentParticipants++
		if _, err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}

		notifyAsync(s.notifier, userID, NotifyRegistrationReady, map[string]any{
			"session_id": sessionID,
			"title":      session.Title,
		})

		return &models.RegistrationResult{Participant: created, AmountDue: amount}, nil

	case session.WaitlistEnabled:
		position := session.WaitlistCount + 1
		participant.Status = models.ParticipantStatusWaitlisted
		participant.WaitlistPosition = &position

		created, err := s.participants.Create(ctx, participant)
		if err != nil {
			return nil, err
		}

		session.WaitlistCount++
		if _, err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}

		return &models.RegistrationResult{Participant: created, Waitlisted: true, AmountDue: amount}, nil

	default:
		return nil, ErrSessionFull
	}
}

// CancelRegistration cancels a user's registration, refunds a completed
// payment, and promotes the head of the waitlist when the cancellation frees
// a seat. Cancelling a waitlisted registration only compacts the waitlist.
func (s *ParticipantService) CancelRegistration(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	participant, err := s.participants.GetActive(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}

	heldSeat := participant.CountsTowardCapacity()
	wasWaitlisted := participant.Status == models.ParticipantStatusWaitlisted
	var freedPosition int
	if wasWaitlisted && participant.WaitlistPosition != nil {
		freedPosition = *participant.WaitlistPosition
	}

	s.refundParticipant(ctx, participant)
	participant.Status = models.ParticipantStatusCancelled
	participant.WaitlistPosition = nil

	updated, err := s.participants.Update(ctx, participant)
	if err != nil {
		return nil, err
	}

	if wasWaitlisted {
		session.WaitlistCount--
		if err := s.compactWaitlist(ctx, sessionID, freedPosition); err != nil {
			return nil, err
		}
		if _, err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
		return updated, nil
	}

	if heldSeat {
		session.CurrentParticipants--
		if err := s.promoteFromWaitlist(ctx, session); err != nil {
			return nil, err
		}
		if _, err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// promoteFromWaitlist admits the waitlisted participant with the lowest
// position. Runs with the session lock held; mutates the session's counters
// in place for the caller to persist.
func (s *ParticipantService) promoteFromWaitlist(
	ctx context.Context,
	session *models.GroupSession,
) error {
	participants, err := s.participants.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	var next *models.Participant
	for i := range participants {
		candidate := &participants[i]
		if candidate.Status != models.ParticipantStatusWaitlisted || candidate.WaitlistPosition == nil {
			continue
		}
		if next == nil || *candidate.WaitlistPosition < *next.WaitlistPosition {
			next = candidate
		}
	}
	if next == nil {
		return nil
	}

	promotedPosition := *next.WaitlistPosition
	next.Status = models.ParticipantStatusRegistered
	next.WaitlistPosition = nil

	if !session.IsFree && next.PaymentStatus == models.PaymentStatusPending && next.PaymentRef == nil {
		ref, err := s.payments.Charge(ctx, next.UserID, next.PaymentAmount, session.Currency)
		if err != nil {
			log.Printf("charge for promoted participant %d failed: %v", next.UserID, err)
		} else {
			next.PaymentRef = &ref
		}
	}

	if _, err := s.participants.Update(ctx, next); err != nil {
		return err
	}

	session.CurrentParticipants++
	session.WaitlistCount--

	if err := s.compactWaitlist(ctx, session.ID, promotedPosition); err != nil {
		return err
	}

	notifyAsync(s.notifier, next.UserID, NotifyWaitlistPromoted, map[string]any{
		"session_id": session.ID,
		"title":      session.Title,
	})
	return nil
}

// compactWaitlist shifts every waitlist position above the vacated one down
// by one, keeping positions dense so position assignment (count+1) can never
// collide.
func (s *ParticipantService) compactWaitlist(
	ctx context.Context,
	sessionID int64,
	vacatedPosition int,
) error {
	if vacatedPosition <= 0 {
		return nil
	}
	participants, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for i := range participants {
		participant := &participants[i]
		if participant.Status != models.ParticipantStatusWaitlisted || participant.WaitlistPosition == nil {
			continue
		}
		if *participant.WaitlistPosition > vacatedPosition {
			shifted := *participant.WaitlistPosition - 1
			participant.WaitlistPosition = &shifted
			if _, err := s.participants.Update(ctx, participant); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordJoin stamps the participant into the meeting. The first join flips
// the status to attended.
func (s *ParticipantService) RecordJoin(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	participant, err := s.getActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if participant.Status == models.ParticipantStatusWaitlisted {
		return nil, ErrForbidden
	}
	if participant.Joined() {
		return participant, nil
	}

	now := time.Now().UTC()
	participant.JoinedAt = &now
	if participant.Status != models.ParticipantStatusAttended {
		participant.Status = models.ParticipantStatusAttended
	}
	return s.participants.Update(ctx, participant)
}

// RecordLeave stamps the participant out and accumulates attendance.
func (s *ParticipantService) RecordLeave(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participant, err := s.getActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !participant.Joined() {
		return nil, ErrInvalidStateTransition
	}

	s.applyLeave(participant, session, time.Now().UTC())
	return s.participants.Update(ctx, participant)
}

func (s *ParticipantService) applyLeave(
	participant *models.Participant,
	session *models.GroupSession,
	leftAt time.Time,
) {
	joined := *participant.JoinedAt
	if leftAt.Before(joined) {
		leftAt = joined
	}
	participant.LeftAt = &leftAt
	participant.AttendanceMinutes += int(leftAt.Sub(joined).Minutes())
	if session.DurationMinutes > 0 {
		pct := float64(participant.AttendanceMinutes) / float64(session.DurationMinutes) * 100
		if pct > 100 {
			pct = 100
		}
		participant.AttendancePercentage = pct
	}
}

// FinalizeAttendance closes the books when a session ends: still-joined
// participants get a synthetic leave at the end time, and seated participants
// who never joined become no-shows. Runs inside the caller's session lock.
func (s *ParticipantService) FinalizeAttendance(
	ctx context.Context,
	session *models.GroupSession,
	endedAt time.Time,
) error {
	participants, err := s.participants.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	for i := range participants {
		participant := &participants[i]
		changed := false

		if participant.Joined() {
			s.applyLeave(participant, session, endedAt)
			changed = true
		} else if participant.JoinedAt == nil && participant.CountsTowardCapacity() {
			participant.Status = models.ParticipantStatusNoShow
			changed = true
		}

		if changed {
			if _, err := s.participants.Update(ctx, participant); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessRefunds refunds every completed payment when a session is cancelled
// and moves those participants to cancelled. Returns the number of refunds
// processed. Runs inside the caller's session lock.
func (s *ParticipantService) ProcessRefunds(
	ctx context.Context,
	session *models.GroupSession,
) (int, error) {
	participants, err := s.participants.ListBySession(ctx, session.ID)
	if err != nil {
		return 0, err
	}

	refunded := 0
	for i := range participants {
		participant := &participants[i]
		if participant.PaymentStatus != models.PaymentStatusCompleted {
			continue
		}

		s.refundParticipant(ctx, participant)
		participant.Status = models.ParticipantStatusCancelled
		participant.WaitlistPosition = nil
		if _, err := s.participants.Update(ctx, participant); err != nil {
			return refunded, err
		}
		refunded++
	}
	return refunded, nil
}

// refundParticipant issues a refund when one is owed. A gateway failure is
// logged; the participant is marked refunded either way so the ledger can
// never refund twice.
func (s *ParticipantService) refundParticipant(ctx context.Context, participant *models.Participant) {
	if participant.PaymentStatus != models.PaymentStatusCompleted {
		return
	}
	if participant.PaymentRef != nil {
		if err := s.payments.Refund(ctx, *participant.PaymentRef); err != nil {
			log.Printf("refund %s for participant %d failed: %v", *participant.PaymentRef, participant.ID, err)
		}
	}
	participant.PaymentStatus = models.PaymentStatusRefunded
}

// MarkPaymentCompleted is the payment confirmation write path
// (pending -> completed), driven by the provider callback.
func (s *ParticipantService) MarkPaymentCompleted(
	ctx context.Context,
	sessionID int64,
	userID int64,
	paymentRef string,
) (*models.Participant, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	participant, err := s.getActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if participant.PaymentStatus != models.PaymentStatusPending {
		return nil, ErrInvalidStateTransition
	}
	if paymentRef != "" {
		participant.PaymentRef = &paymentRef
	}
	participant.PaymentStatus = models.PaymentStatusCompleted
	return s.participants.Update(ctx, participant)
}

// SubmitRating records a one-time 1..5 rating and recomputes the session's
// aggregate.
func (s *ParticipantService) SubmitRating(
	ctx context.Context,
	sessionID int64,
	userID int64,
	rating int,
	feedback *string,
) (*models.Participant, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidInput
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participant, err := s.getActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if participant.Rating != nil {
		return nil, ErrAlreadyRated
	}

	participant.Rating = &rating
	participant.Feedback = feedback
	updated, err := s.participants.Update(ctx, participant)
	if err != nil {
		return nil, err
	}

	participants, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	total, count := 0, 0
	for _, p := range participants {
		if p.Rating != nil {
			total += *p.Rating
			count++
		}
	}
	session.RatingCount = count
	if count > 0 {
		session.AverageRating = float64(total) / float64(count)
	}
	if _, err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *ParticipantService) ListParticipants(
	ctx context.Context,
	sessionID int64,
) ([]models.Participant, error) {
	return s.participants.ListBySession(ctx, sessionID)
}

// IsRegistered reports whether the user holds a non-cancelled registration.
func (s *ParticipantService) IsRegistered(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, bool, error) {
	participant, err := s.participants.GetActive(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return participant, true, nil
}

// RecordEngagement bumps a participant's engagement counter. Chat calls this
// outside any session lock on purpose: counters are advisory.
func (s *ParticipantService) RecordEngagement(
	ctx context.Context,
	sessionID int64,
	userID int64,
	kind string,
) {
	participant, err := s.participants.GetActive(ctx, sessionID, userID)
	if err != nil {
		return
	}
	switch kind {
	case EngagementMessage:
		participant.MessagesSent++
	case EngagementQuestion:
		participant.QuestionsAsked++
	case EngagementPollVote:
		participant.PollVotes++
	default:
		return
	}
	if _, err := s.participants.Update(ctx, participant); err != nil {
		log.Printf("record %s engagement for participant %d: %v", kind, participant.ID, err)
	}
}

const (
	EngagementMessage  = "message"
	EngagementQuestion = "question"
	EngagementPollVote = "poll_vote"
)

func (s *ParticipantService) getSession(
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

func (s *ParticipantService) getActiveParticipant(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, error) {
	participant, err := s.participants.GetActive(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return participant, nil
}
