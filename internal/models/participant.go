package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ParticipantStatusRegistered = "registered"
	ParticipantStatusWaitlisted = "waitlisted"
	ParticipantStatusConfirmed  = "confirmed"
	ParticipantStatusAttended   = "attended"
	ParticipantStatusNoShow     = "no_show"
	ParticipantStatusCancelled  = "cancelled"
)

const (
	ParticipantRoleParticipant = "participant"
	ParticipantRoleHost        = "host"
	ParticipantRoleModerator   = "moderator"
)

const (
	PaymentStatusNotRequired = "not_required"
	PaymentStatusPending     = "pending"
	PaymentStatusCompleted   = "completed"
	PaymentStatusRefunded    = "refunded"
)

// Participant is one user's registration record for one session. At most one
// non-cancelled record exists per (session, user); WaitlistPosition is set iff
// the participant is waitlisted.
type Participant struct {
	ID                   int64           `json:"id"`
	SessionID            int64           `json:"session_id"`
	UserID               int64           `json:"user_id"`
	Status               string          `json:"status"`
	Role                 string          `json:"role"`
	PaymentStatus        string          `json:"payment_status"`
	PaymentRef           *string         `json:"payment_ref,omitempty"`
	PaymentAmount        decimal.Decimal `json:"payment_amount"`
	WaitlistPosition     *int            `json:"waitlist_position,omitempty"`
	JoinedAt             *time.Time      `json:"joined_at,omitempty"`
	LeftAt               *time.Time      `json:"left_at,omitempty"`
	AttendanceMinutes    int             `json:"attendance_minutes"`
	AttendancePercentage float64         `json:"attendance_percentage"`
	MessagesSent         int             `json:"messages_sent"`
	QuestionsAsked       int             `json:"questions_asked"`
	PollVotes            int             `json:"poll_votes"`
	Rating               *int            `json:"rating,omitempty"`
	Feedback             *string         `json:"feedback,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Joined reports whether the participant is currently in the meeting, i.e.
// the latest join has no matching leave yet.
func (p *Participant) Joined() bool {
	if p.JoinedAt == nil {
		return false
	}
	return p.LeftAt == nil || p.LeftAt.Before(*p.JoinedAt)
}

// CountsTowardCapacity reports whether the participant occupies one of the
// session's bounded seats.
func (p *Participant) CountsTowardCapacity() bool {
	switch p.Status {
	case ParticipantStatusRegistered, ParticipantStatusConfirmed, ParticipantStatusAttended:
		return true
	default:
		return false
	}
}

// RegistrationResult reports the admission outcome to the caller so the API
// layer can offer the waitlist or collect payment.
type RegistrationResult struct {
	Participant *Participant    `json:"participant"`
	Waitlisted  bool            `json:"waitlisted"`
	AmountDue   decimal.Decimal `json:"amount_due"`
}
