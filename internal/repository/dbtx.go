package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is the store-level sentinel for a missing row. The pgx
// repositories translate pgx.ErrNoRows into it so the services never depend
// on driver error values.
var ErrNotFound = errors.New("not found")

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GroupSessionFilter gathers the conjunctive list predicates. Zero values
// mean "no constraint".
type GroupSessionFilter struct {
	CoachID       int64
	Statuses      []string
	SessionType   string
	Category      string
	FreeOnly      bool
	PaidOnly      bool
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Tags          []string
	Search        string
}

const (
	SortByScheduledAt  = "scheduled_at"
	SortByCreatedAt    = "created_at"
	SortByPrice        = "price"
	SortByParticipants = "current_participants"
)

type GroupSessionSort struct {
	Key        string
	Descending bool
}

type Page struct {
	Number int
	Limit  int
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// ChatMessageFilter narrows a session's message history. Hidden and deleted
// messages are always excluded by the stores themselves.
type ChatMessageFilter struct {
	Since          *time.Time
	Until          *time.Time
	MessageType    string
	PinnedOnly     bool
	QuestionsOnly  bool
	UnansweredOnly bool
	Limit          int
}

func translateNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
