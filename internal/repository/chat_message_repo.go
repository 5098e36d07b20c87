package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

const chatMessageColumns = `
	id, session_id, user_id, message_type, content,
	reply_to_id, thread_id, poll, attachments, reactions,
	is_pinned, is_highlighted, is_hidden, hidden_reason,
	is_answered, answered_by, answered_at, upvote_count, upvoter_ids,
	edited_at, deleted_at, created_at`

type ChatMessageRepository struct {
	db DBTX
}

func NewChatMessageRepository(db DBTX) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func scanChatMessage(row pgx.Row) (*models.SessionChatMessage, error) {
	var message models.SessionChatMessage
	var pollJSON, attachmentsJSON, reactionsJSON []byte
	err := row.Scan(
		&message.ID,
		&message.SessionID,
		&message.UserID,
		&message.MessageType,
		&message.Content,
		&message.ReplyToID,
		&message.ThreadID,
		&pollJSON,
		&attachmentsJSON,
		&reactionsJSON,
		&message.IsPinned,
		&message.IsHighlighted,
		&message.IsHidden,
		&message.HiddenReason,
		&message.IsAnswered,
		&message.AnsweredBy,
		&message.AnsweredAt,
		&message.UpvoteCount,
		&message.UpvoterIDs,
		&message.EditedAt,
		&message.DeletedAt,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, translateNoRows(err)
	}
	if len(pollJSON) > 0 {
		if err := json.Unmarshal(pollJSON, &message.Poll); err != nil {
			return nil, fmt.Errorf("decode poll payload: %w", err)
		}
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &message.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(reactionsJSON) > 0 {
		if err := json.Unmarshal(reactionsJSON, &message.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions: %w", err)
		}
	}
	return &message, nil
}

func encodeJSON(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// Create inserts the message. When the message is not a reply its thread id
// becomes its own id, so every message belongs to exactly one thread.
func (r *ChatMessageRepository) Create(
	ctx context.Context,
	message *models.SessionChatMessage,
) (*models.SessionChatMessage, error) {
	pollJSON, err := encodeJSON(message.Poll, message.Poll == nil)
	if err != nil {
		return nil, err
	}
	attachmentsJSON, err := encodeJSON(message.Attachments, len(message.Attachments) == 0)
	if err != nil {
		return nil, err
	}
	reactionsJSON, err := encodeJSON(message.Reactions, len(message.Reactions) == 0)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO session_chat_messages (
			session_id, user_id, message_type, content,
			reply_to_id, thread_id, poll, attachments, reactions
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, chatMessageColumns)

	created, err := scanChatMessage(r.db.QueryRow(
		ctx,
		query,
		message.SessionID,
		message.UserID,
		message.MessageType,
		message.Content,
		message.ReplyToID,
		message.ThreadID,
		pollJSON,
		attachmentsJSON,
		reactionsJSON,
	))
	if err != nil {
		return nil, err
	}

	if created.ThreadID == nil {
		selfThread := fmt.Sprintf(`
			UPDATE session_chat_messages
			SET thread_id = id
			WHERE id = $1
			RETURNING %s
		`, chatMessageColumns)
		return scanChatMessage(r.db.QueryRow(ctx, selfThread, created.ID))
	}
	return created, nil
}

func (r *ChatMessageRepository) GetByID(
	ctx context.Context,
	messageID int64,
) (*models.SessionChatMessage, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM session_chat_messages
		WHERE id = $1
	`, chatMessageColumns)
	return scanChatMessage(r.db.QueryRow(ctx, query, messageID))
}

func (r *ChatMessageRepository) Update(
	ctx context.Context,
	message *models.SessionChatMessage,
) (*models.SessionChatMessage, error) {
	pollJSON, err := encodeJSON(message.Poll, message.Poll == nil)
	if err != nil {
		return nil, err
	}
	attachmentsJSON, err := encodeJSON(message.Attachments, len(message.Attachments) == 0)
	if err != nil {
		return nil, err
	}
	reactionsJSON, err := encodeJSON(message.Reactions, len(message.Reactions) == 0)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE session_chat_messages
		SET content = $2, poll = $3, attachments = $4, reactions = $5,
			is_pinned = $6, is_highlighted = $7, is_hidden = $8, hidden_reason = $9,
			is_answered = $10, answered_by = $11, answered_at = $12,
			upvote_count = $13, upvoter_ids = $14,
			edited_at = $15, deleted_at = $16
		WHERE id = $1
		RETURNING %s
	`, chatMessageColumns)

	row := r.db.QueryRow(
		ctx,
		query,
		message.ID,
		message.Content,
		pollJSON,
		attachmentsJSON,
		reactionsJSON,
		message.IsPinned,
		message.IsHighlighted,
		message.IsHidden,
		message.HiddenReason,
		message.IsAnswered,
		message.AnsweredBy,
		message.AnsweredAt,
		message.UpvoteCount,
		message.UpvoterIDs,
		message.EditedAt,
		message.DeletedAt,
	)
	return scanChatMessage(row)
}

// ListBySession returns visible messages in chronological order. Hidden and
// soft-deleted rows never leave the store through this path.
func (r *ChatMessageRepository) ListBySession(
	ctx context.Context,
	sessionID int64,
	filter ChatMessageFilter,
) ([]models.SessionChatMessage, error) {
	args := []any{sessionID}
	whereParts := []string{"session_id = $1", "deleted_at IS NULL", "NOT is_hidden"}

	addArg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Since != nil {
		whereParts = append(whereParts, "created_at >= "+addArg(*filter.Since))
	}
	if filter.Until != nil {
		whereParts = append(whereParts, "created_at <= "+addArg(*filter.Until))
	}
	if messageType := strings.TrimSpace(filter.MessageType); messageType != "" {
		whereParts = append(whereParts, "message_type = "+addArg(messageType))
	}
	if filter.PinnedOnly {
		whereParts = append(whereParts, "is_pinned")
	}
	if filter.QuestionsOnly {
		whereParts = append(whereParts, "message_type = 'question'")
	}
	if filter.UnansweredOnly {
		whereParts = append(whereParts, "NOT is_answered")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM session_chat_messages
		WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT %s
	`, chatMessageColumns, strings.Join(whereParts, " AND "), addArg(limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.SessionChatMessage, 0)
	for rows.Next() {
		message, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// SoftDeleteBySession tombstones every remaining visible message in a
// session and returns how many rows were affected.
func (r *ChatMessageRepository) SoftDeleteBySession(
	ctx context.Context,
	sessionID int64,
) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_chat_messages
		SET deleted_at = NOW()
		WHERE session_id = $1 AND deleted_at IS NULL
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
