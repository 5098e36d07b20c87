package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
)

// In-memory stores backing the service tests. They mirror the pgx
// repositories' observable behavior: copy-on-write rows, ErrNotFound for
// missing ids, and the same filter semantics.

type memSessionStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.GroupSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{rows: make(map[int64]*models.GroupSession)}
}

func (m *memSessionStore) Create(_ context.Context, session *models.GroupSession) (*models.GroupSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := *session
	row.ID = m.nextID
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	m.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (m *memSessionStore) GetByID(_ context.Context, sessionID int64) (*models.GroupSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (m *memSessionStore) Update(_ context.Context, session *models.GroupSession) (*models.GroupSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[session.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	row := *session
	row.UpdatedAt = time.Now().UTC()
	m.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (m *memSessionStore) List(
	_ context.Context,
	filter repository.GroupSessionFilter,
	sortBy repository.GroupSessionSort,
	page repository.Page,
) ([]models.GroupSession, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]models.GroupSession, 0, len(m.rows))
	for _, row := range m.rows {
		if !sessionMatches(row, filter) {
			continue
		}
		matched = append(matched, *row)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch sortBy.Key {
		case repository.SortByCreatedAt:
			less = a.CreatedAt.Before(b.CreatedAt)
		case repository.SortByPrice:
			less = a.Price.LessThan(b.Price)
		case repository.SortByParticipants:
			less = a.CurrentParticipants < b.CurrentParticipants
		default:
			less = a.ScheduledAt.Before(b.ScheduledAt)
		}
		if sortBy.Descending {
			less = !less
		}
		if a.ScheduledAt.Equal(b.ScheduledAt) && a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return less
	})

	total := len(matched)
	offset := page.Offset()
	if offset >= total {
		return []models.GroupSession{}, total, nil
	}
	end := offset + page.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func sessionMatches(row *models.GroupSession, filter repository.GroupSessionFilter) bool {
	if filter.CoachID != 0 && row.CoachID != filter.CoachID {
		return false
	}
	if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, row.Status) {
		return false
	}
	if filter.SessionType != "" && row.SessionType != filter.SessionType {
		return false
	}
	if filter.Category != "" && (row.Category == nil || *row.Category != filter.Category) {
		return false
	}
	if filter.FreeOnly && !row.IsFree {
		return false
	}
	if filter.PaidOnly && row.IsFree {
		return false
	}
	if filter.ScheduledFrom != nil && row.ScheduledAt.Before(*filter.ScheduledFrom) {
		return false
	}
	if filter.ScheduledTo != nil && row.ScheduledAt.After(*filter.ScheduledTo) {
		return false
	}
	if len(filter.Tags) > 0 {
		overlap := lo.Some(row.Tags, filter.Tags)
		if !overlap {
			return false
		}
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystack := strings.ToLower(row.Title)
		if row.Description != nil {
			haystack += " " + strings.ToLower(*row.Description)
		}
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

type memParticipantStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Participant
}

func newMemParticipantStore() *memParticipantStore {
	return &memParticipantStore{rows: make(map[int64]*models.Participant)}
}

func (m *memParticipantStore) Create(_ context.Context, participant *models.Participant) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := *participant
	row.ID = m.nextID
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	m.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (m *memParticipantStore) GetActive(_ context.Context, sessionID, userID int64) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Participant
	for _, row := range m.rows {
		if row.SessionID != sessionID || row.UserID != userID {
			continue
		}
		if row.Status == models.ParticipantStatusCancelled {
			continue
		}
		if found == nil || row.ID > found.ID {
			found = row
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	out := *found
	return &out, nil
}

func (m *memParticipantStore) Update(_ context.Context, participant *models.Participant) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[participant.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	row := *participant
	row.UpdatedAt = time.Now().UTC()
	m.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (m *memParticipantStore) ListBySession(_ context.Context, sessionID int64) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Participant, 0)
	for _, row := range m.rows {
		if row.SessionID == sessionID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memChatMessageStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.SessionChatMessage
}

func newMemChatMessageStore() *memChatMessageStore {
	return &memChatMessageStore{rows: make(map[int64]*models.SessionChatMessage)}
}

func (m *memChatMessageStore) Create(_ context.Context, message *models.SessionChatMessage) (*models.SessionChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := cloneMessage(message)
	row.ID = m.nextID
	row.CreatedAt = time.Now().UTC()
	if row.ThreadID == nil {
		id := row.ID
		row.ThreadID = &id
	}
	m.rows[row.ID] = row
	return cloneMessage(row), nil
}

func (m *memChatMessageStore) GetByID(_ context.Context, messageID int64) (*models.SessionChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(row), nil
}

func (m *memChatMessageStore) Update(_ context.Context, message *models.SessionChatMessage) (*models.SessionChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[message.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	row := cloneMessage(message)
	m.rows[row.ID] = row
	return cloneMessage(row), nil
}

func (m *memChatMessageStore) ListBySession(
	_ context.Context,
	sessionID int64,
	filter repository.ChatMessageFilter,
) ([]models.SessionChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SessionChatMessage, 0)
	for _, row := range m.rows {
		if row.SessionID != sessionID || !row.Visible() {
			continue
		}
		if filter.Since != nil && row.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && row.CreatedAt.After(*filter.Until) {
			continue
		}
		if filter.MessageType != "" && row.MessageType != filter.MessageType {
			continue
		}
		if filter.PinnedOnly && !row.IsPinned {
			continue
		}
		if filter.QuestionsOnly && row.MessageType != models.MessageTypeQuestion {
			continue
		}
		if filter.UnansweredOnly && row.IsAnswered {
			continue
		}
		out = append(out, *cloneMessage(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memChatMessageStore) SoftDeleteBySession(_ context.Context, sessionID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, row := range m.rows {
		if row.SessionID == sessionID && row.DeletedAt == nil {
			row.DeletedAt = &now
			count++
		}
	}
	return count, nil
}

func cloneMessage(message *models.SessionChatMessage) *models.SessionChatMessage {
	row := *message
	if message.Poll != nil {
		poll := *message.Poll
		poll.Options = make([]models.PollOption, len(message.Poll.Options))
		for i, option := range message.Poll.Options {
			poll.Options[i] = option
			poll.Options[i].VoterIDs = append([]int64(nil), option.VoterIDs...)
		}
		row.Poll = &poll
	}
	if message.Reactions != nil {
		row.Reactions = make(map[string]*models.Reaction, len(message.Reactions))
		for emoji, reaction := range message.Reactions {
			copied := *reaction
			copied.UserIDs = append([]int64(nil), reaction.UserIDs...)
			row.Reactions[emoji] = &copied
		}
	}
	row.UpvoterIDs = append([]int64(nil), message.UpvoterIDs...)
	row.Attachments = append([]models.Attachment(nil), message.Attachments...)
	return &row
}
