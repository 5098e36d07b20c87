package models

import "time"

const (
	MessageTypeText         = "text"
	MessageTypeAnnouncement = "announcement"
	MessageTypePoll         = "poll"
	MessageTypeQuestion     = "question"
	MessageTypeAnswer       = "answer"
	MessageTypeSystem       = "system"
)

const (
	PollStatusActive = "active"
	PollStatusClosed = "closed"
)

// SessionChatMessage is one entry in a session's chat stream. Deletion and
// hiding are soft so the row survives for auditing.
type SessionChatMessage struct {
	ID            int64                `json:"id"`
	SessionID     int64                `json:"session_id"`
	UserID        int64                `json:"user_id"`
	MessageType   string               `json:"message_type"`
	Content       string               `json:"content"`
	ReplyToID     *int64               `json:"reply_to_id,omitempty"`
	ThreadID      *int64               `json:"thread_id,omitempty"`
	Poll          *PollData            `json:"poll,omitempty"`
	Attachments   []Attachment         `json:"attachments,omitempty"`
	Reactions     map[string]*Reaction `json:"reactions,omitempty"`
	IsPinned      bool                 `json:"is_pinned"`
	IsHighlighted bool                 `json:"is_highlighted"`
	IsHidden      bool                 `json:"is_hidden"`
	HiddenReason  *string              `json:"hidden_reason,omitempty"`
	IsAnswered    bool                 `json:"is_answered"`
	AnsweredBy    *int64               `json:"answered_by,omitempty"`
	AnsweredAt    *time.Time           `json:"answered_at,omitempty"`
	UpvoteCount   int                  `json:"upvote_count"`
	UpvoterIDs    []int64              `json:"upvoter_ids,omitempty"`
	EditedAt      *time.Time           `json:"edited_at,omitempty"`
	DeletedAt     *time.Time           `json:"deleted_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Visible reports whether subscribers should still render the message.
func (m *SessionChatMessage) Visible() bool {
	return m.DeletedAt == nil && !m.IsHidden
}

type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Reaction aggregates one emoji on one message: a count plus the set of users
// behind it, one vote per user per emoji.
type Reaction struct {
	Count   int     `json:"count"`
	UserIDs []int64 `json:"user_ids"`
}

// PollData is the nested payload of a poll message. The sum of VoteCount
// across options equals the number of ballots cast.
type PollData struct {
	Question         string       `json:"question"`
	Options          []PollOption `json:"options"`
	Status           string       `json:"status"`
	AllowMultiple    bool         `json:"allow_multiple"`
	Anonymous        bool         `json:"anonymous"`
	ShowResults      bool         `json:"show_results"`
	AutoCloseMinutes *int         `json:"auto_close_minutes,omitempty"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
}

type PollOption struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	VoteCount int     `json:"vote_count"`
	VoterIDs  []int64 `json:"voter_ids,omitempty"`
}

// Option returns the option with the given id, or nil.
func (p *PollData) Option(id string) *PollOption {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}
