package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

const groupSessionColumns = `
	id, coach_id, title, description, session_type, category, tags,
	scheduled_at, duration_min, timezone, recurrence_pattern, recurrence_end_date,
	max_participants, min_participants, current_participants,
	waitlist_enabled, waitlist_count,
	is_free, price, early_bird_price, early_bird_deadline, currency,
	status, meeting_id, meeting_url, meeting_password,
	chat_enabled, polls_enabled, qa_enabled, recording_enabled,
	average_rating, rating_count, created_at, updated_at`

type GroupSessionRepository struct {
	db DBTX
}

func NewGroupSessionRepository(db DBTX) *GroupSessionRepository {
	return &GroupSessionRepository{db: db}
}

func scanGroupSession(row pgx.Row) (*models.GroupSession, error) {
	var session models.GroupSession
	var earlyBird decimal.NullDecimal
	err := row.Scan(
		&session.ID,
		&session.CoachID,
		&session.Title,
		&session.Description,
		&session.SessionType,
		&session.Category,
		&session.Tags,
		&session.ScheduledAt,
		&session.DurationMinutes,
		&session.Timezone,
		&session.RecurrencePattern,
		&session.RecurrenceEndDate,
		&session.MaxParticipants,
		&session.MinParticipants,
		&session.CurrentParticipants,
		&session.WaitlistEnabled,
		&session.WaitlistCount,
		&session.IsFree,
		&session.Price,
		&earlyBird,
		&session.EarlyBirdDeadline,
		&session.Currency,
		&session.Status,
		&session.MeetingID,
		&session.MeetingURL,
		&session.MeetingPassword,
		&session.ChatEnabled,
		&session.PollsEnabled,
		&session.QAEnabled,
		&session.RecordingEnabled,
		&session.AverageRating,
		&session.RatingCount,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, translateNoRows(err)
	}
	if earlyBird.Valid {
		session.EarlyBirdPrice = &earlyBird.Decimal
	}
	return &session, nil
}

func nullEarlyBird(price *decimal.Decimal) decimal.NullDecimal {
	if price == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *price, Valid: true}
}

func (r *GroupSessionRepository) Create(
	ctx context.Context,
	session *models.GroupSession,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		INSERT INTO group_sessions (
			coach_id, title, description, session_type, category, tags,
			scheduled_at, duration_min, timezone, recurrence_pattern, recurrence_end_date,
			max_participants, min_participants, current_participants,
			waitlist_enabled, waitlist_count,
			is_free, price, early_bird_price, early_bird_deadline, currency,
			status, chat_enabled, polls_enabled, qa_enabled, recording_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		RETURNING %s
	`, groupSessionColumns)

	row := r.db.QueryRow(
		ctx,
		query,
		session.CoachID,
		session.Title,
		session.Description,
		session.SessionType,
		session.Category,
		session.Tags,
		session.ScheduledAt,
		session.DurationMinutes,
		session.Timezone,
		session.RecurrencePattern,
		session.RecurrenceEndDate,
		session.MaxParticipants,
		session.MinParticipants,
		session.CurrentParticipants,
		session.WaitlistEnabled,
		session.WaitlistCount,
		session.IsFree,
		session.Price,
		nullEarlyBird(session.EarlyBirdPrice),
		session.EarlyBirdDeadline,
		session.Currency,
		session.Status,
		session.ChatEnabled,
		session.PollsEnabled,
		session.QAEnabled,
		session.RecordingEnabled,
	)
	return scanGroupSession(row)
}

func (r *GroupSessionRepository) GetByID(
	ctx context.Context,
	sessionID int64,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM group_sessions
		WHERE id = $1
	`, groupSessionColumns)
	return scanGroupSession(r.db.QueryRow(ctx, query, sessionID))
}

// Update writes every mutable field back. Callers hold the per-session
// critical section, so a full write is equivalent to the increments the
// services perform in memory.
func (r *GroupSessionRepository) Update(
	ctx context.Context,
	session *models.GroupSession,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		UPDATE group_sessions
		SET title = $2, description = $3, session_type = $4, category = $5, tags = $6,
			scheduled_at = $7, duration_min = $8, timezone = $9,
			max_participants = $10, min_participants = $11, current_participants = $12,
			waitlist_enabled = $13, waitlist_count = $14,
			is_free = $15, price = $16, early_bird_price = $17, early_bird_deadline = $18,
			currency = $19, status = $20,
			meeting_id = $21, meeting_url = $22, meeting_password = $23,
			chat_enabled = $24, polls_enabled = $25, qa_enabled = $26, recording_enabled = $27,
			average_rating = $28, rating_count = $29,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, groupSessionColumns)

	row := r.db.QueryRow(
		ctx,
		query,
		session.ID,
		session.Title,
		session.Description,
		session.SessionType,
		session.Category,
		session.Tags,
		session.ScheduledAt,
		session.DurationMinutes,
		session.Timezone,
		session.MaxParticipants,
		session.MinParticipants,
		session.CurrentParticipants,
		session.WaitlistEnabled,
		session.WaitlistCount,
		session.IsFree,
		session.Price,
		nullEarlyBird(session.EarlyBirdPrice),
		session.EarlyBirdDeadline,
		session.Currency,
		session.Status,
		session.MeetingID,
		session.MeetingURL,
		session.MeetingPassword,
		session.ChatEnabled,
		session.PollsEnabled,
		session.QAEnabled,
		session.RecordingEnabled,
		session.AverageRating,
		session.RatingCount,
	)
	return scanGroupSession(row)
}

func (r *GroupSessionRepository) List(
	ctx context.Context,
	filter GroupSessionFilter,
	sort GroupSessionSort,
	page Page,
) ([]models.GroupSession, int, error) {
	args := []any{}
	whereParts := []string{"TRUE"}

	addArg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CoachID > 0 {
		whereParts = append(whereParts, "coach_id = "+addArg(filter.CoachID))
	}
	if len(filter.Statuses) > 0 {
		whereParts = append(whereParts, "status = ANY("+addArg(filter.Statuses)+")")
	}
	if sessionType := strings.TrimSpace(filter.SessionType); sessionType != "" {
		whereParts = append(whereParts, "session_type = "+addArg(sessionType))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		whereParts = append(whereParts, "category = "+addArg(category))
	}
	if filter.FreeOnly {
		whereParts = append(whereParts, "is_free")
	}
	if filter.PaidOnly {
		whereParts = append(whereParts, "NOT is_free")
	}
	if filter.ScheduledFrom != nil {
		whereParts = append(whereParts, "scheduled_at >= "+addArg(*filter.ScheduledFrom))
	}
	if filter.ScheduledTo != nil {
		whereParts = append(whereParts, "scheduled_at <= "+addArg(*filter.ScheduledTo))
	}
	if len(filter.Tags) > 0 {
		whereParts = append(whereParts, "tags && "+addArg(filter.Tags))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := addArg("%" + search + "%")
		whereParts = append(
			whereParts,
			fmt.Sprintf("(title ILIKE %s OR COALESCE(description, '') ILIKE %s)", pattern, pattern),
		)
	}

	where := strings.Join(whereParts, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM group_sessions WHERE " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderColumn := SortByScheduledAt
	switch sort.Key {
	case SortByScheduledAt, SortByCreatedAt, SortByPrice, SortByParticipants:
		orderColumn = sort.Key
	}
	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM group_sessions
		WHERE %s
		ORDER BY %s %s, id ASC
		LIMIT %s OFFSET %s
	`, groupSessionColumns, where, orderColumn, direction, addArg(page.Limit), addArg(page.Offset()))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := make([]models.GroupSession, 0)
	for rows.Next() {
		session, err := scanGroupSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}
