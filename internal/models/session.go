package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SessionStatusScheduled = "scheduled"
	SessionStatusLive      = "live"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

const (
	RecurrenceNone     = "none"
	RecurrenceDaily    = "daily"
	RecurrenceWeekly   = "weekly"
	RecurrenceBiweekly = "biweekly"
	RecurrenceMonthly  = "monthly"
)

// GroupSession is a scheduled group coaching event with bounded capacity.
// CurrentParticipants counts registered (non-waitlisted) participants only.
type GroupSession struct {
	ID                  int64            `json:"id"`
	CoachID             int64            `json:"coach_id"`
	Title               string           `json:"title"`
	Description         *string          `json:"description,omitempty"`
	SessionType         string           `json:"session_type"`
	Category            *string          `json:"category,omitempty"`
	Tags                []string         `json:"tags,omitempty"`
	ScheduledAt         time.Time        `json:"scheduled_at"`
	DurationMinutes     int              `json:"duration_minutes"`
	Timezone            string           `json:"timezone"`
	RecurrencePattern   string           `json:"recurrence_pattern"`
	RecurrenceEndDate   *time.Time       `json:"recurrence_end_date,omitempty"`
	MaxParticipants     int              `json:"max_participants"`
	MinParticipants     int              `json:"min_participants"`
	CurrentParticipants int              `json:"current_participants"`
	WaitlistEnabled     bool             `json:"waitlist_enabled"`
	WaitlistCount       int              `json:"waitlist_count"`
	IsFree              bool             `json:"is_free"`
	Price               decimal.Decimal  `json:"price"`
	EarlyBirdPrice      *decimal.Decimal `json:"early_bird_price,omitempty"`
	EarlyBirdDeadline   *time.Time       `json:"early_bird_deadline,omitempty"`
	Currency            string           `json:"currency"`
	Status              string           `json:"status"`
	MeetingID           *string          `json:"meeting_id,omitempty"`
	MeetingURL          *string          `json:"meeting_url,omitempty"`
	MeetingPassword     *string          `json:"meeting_password,omitempty"`
	ChatEnabled         bool             `json:"chat_enabled"`
	PollsEnabled        bool             `json:"polls_enabled"`
	QAEnabled           bool             `json:"qa_enabled"`
	RecordingEnabled    bool             `json:"recording_enabled"`
	AverageRating       float64          `json:"average_rating"`
	RatingCount         int              `json:"rating_count"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// MeetingRoom holds the credentials assigned when a session goes live.
type MeetingRoom struct {
	MeetingID string `json:"meeting_id"`
	URL       string `json:"url"`
	Password  string `json:"password"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
