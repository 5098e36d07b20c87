package services

import (
	"context"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

// The services own the per-session critical sections; the stores own physical
// storage. A missing row surfaces as repository.ErrNotFound.

type SessionStore interface {
	Create(ctx context.Context, session *models.GroupSession) (*models.GroupSession, error)
	GetByID(ctx context.Context, sessionID int64) (*models.GroupSession, error)
	Update(ctx context.Context, session *models.GroupSession) (*models.GroupSession, error)
	List(
		ctx context.Context,
		filter repository.GroupSessionFilter,
		sort repository.GroupSessionSort,
		page repository.Page,
	) ([]models.GroupSession, int, error)
}

type ParticipantStore interface {
	Create(ctx context.Context, participant *models.Participant) (*models.Participant, error)
	GetActive(ctx context.Context, sessionID, userID int64) (*models.Participant, error)
	Update(ctx context.Context, participant *models.Participant) (*models.Participant, error)
	ListBySession(ctx context.Context, sessionID int64) ([]models.Participant, error)
}

type ChatMessageStore interface {
	Create(ctx context.Context, message *models.SessionChatMessage) (*models.SessionChatMessage, error)
	GetByID(ctx context.Context, messageID int64) (*models.SessionChatMessage, error)
	Update(ctx context.Context, message *models.SessionChatMessage) (*models.SessionChatMessage, error)
	ListBySession(
		ctx context.Context,
		sessionID int64,
		filter repository.ChatMessageFilter,
	) ([]models.SessionChatMessage, error)
	SoftDeleteBySession(ctx context.Context, sessionID int64) (int, error)
}
