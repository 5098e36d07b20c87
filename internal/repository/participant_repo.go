package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

const participantColumns = `
	id, session_id, user_id, status, role,
	payment_status, payment_ref, payment_amount, waitlist_position,
	joined_at, left_at, attendance_min, attendance_pct,
	messages_sent, questions_asked, poll_votes,
	rating, feedback, created_at, updated_at`

type ParticipantRepository struct {
	db DBTX
}

func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var participant models.Participant
	err := row.Scan(
		&participant.ID,
		&participant.SessionID,
		&participant.UserID,
		&participant.Status,
		&participant.Role,
		&participant.PaymentStatus,
		&participant.PaymentRef,
		&participant.PaymentAmount,
		&participant.WaitlistPosition,
		&participant.JoinedAt,
		&participant.LeftAt,
		&participant.AttendanceMinutes,
		&participant.AttendancePercentage,
		&participant.MessagesSent,
		&participant.QuestionsAsked,
		&participant.PollVotes,
		&participant.Rating,
		&participant.Feedback,
		&participant.CreatedAt,
		&participant.UpdatedAt,
	)
	if err != nil {
		return nil, translateNoRows(err)
	}
	return &participant, nil
}

func (r *ParticipantRepository) Create(
	ctx context.Context,
	participant *models.Participant,
) (*models.Participant, error) {
	query := fmt.Sprintf(`
		INSERT INTO session_participants (
			session_id, user_id, status, role,
			payment_status, payment_ref, payment_amount, waitlist_position
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, participantColumns)

	row := r.db.QueryRow(
		ctx,
		query,
		participant.SessionID,
		participant.UserID,
		participant.Status,
		participant.Role,
		participant.PaymentStatus,
		participant.PaymentRef,
		participant.PaymentAmount,
		participant.WaitlistPosition,
	)
	return scanParticipant(row)
}

// GetActive returns the one non-cancelled record for (session, user).
func (r *ParticipantRepository) GetActive(
	ctx context.Context,
	sessionID int64,
	userID int64,
) (*models.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM session_participants
		WHERE session_id = $1 AND user_id = $2 AND status <> 'cancelled'
		ORDER BY id DESC
		LIMIT 1
	`, participantColumns)
	return scanParticipant(r.db.QueryRow(ctx, query, sessionID, userID))
}

func (r *ParticipantRepository) Update(
	ctx context.Context,
	participant *models.Participant,
) (*models.Participant, error) {
	query := fmt.Sprintf(`
		UPDATE session_participants
		SET status = $2, role = $3,
			payment_status = $4, payment_ref = $5, payment_amount = $6,
			waitlist_position = $7, joined_at = $8, left_at = $9,
			attendance_min = $10, attendance_pct = $11,
			messages_sent = $12, questions_asked = $13, poll_votes = $14,
			rating = $15, feedback = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, participantColumns)

	row := r.db.QueryRow(
		ctx,
		query,
		participant.ID,
		participant.Status,
		participant.Role,
		participant.PaymentStatus,
		participant.PaymentRef,
		participant.PaymentAmount,
		participant.WaitlistPosition,
		participant.JoinedAt,
		participant.LeftAt,
		participant.AttendanceMinutes,
		participant.AttendancePercentage,
		participant.MessagesSent,
		participant.QuestionsAsked,
		participant.PollVotes,
		participant.Rating,
		participant.Feedback,
	)
	return scanParticipant(row)
}

func (r *ParticipantRepository) ListBySession(
	ctx context.Context,
	sessionID int64,
) ([]models.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM session_participants
		WHERE session_id = $1
		ORDER BY id ASC
	`, participantColumns)

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *participant)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return participants, nil
}
