package services

import (
	"sync"
	"time"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

type ChatEventType string

const (
	ChatEventMessage        ChatEventType = "message"
	ChatEventMessageDeleted ChatEventType = "message_deleted"
	ChatEventMessagePinned  ChatEventType = "message_pinned"
	ChatEventReaction       ChatEventType = "reaction"
	ChatEventPollUpdate     ChatEventType = "poll_update"
)

// ReactionUpdate is the aggregate for one emoji after an add or remove.
type ReactionUpdate struct {
	MessageID int64   `json:"message_id"`
	Emoji     string  `json:"emoji"`
	Count     int     `json:"count"`
	UserIDs   []int64 `json:"user_ids,omitempty"`
}

// ChatEvent is one typed chat notification. Exactly one of the payload
// fields is set depending on Type.
type ChatEvent struct {
	Type      ChatEventType              `json:"type"`
	SessionID int64                      `json:"session_id"`
	MessageID int64                      `json:"message_id,omitempty"`
	Message   *models.SessionChatMessage `json:"message,omitempty"`
	Reaction  *ReactionUpdate            `json:"reaction,omitempty"`
	Poll      *models.PollData           `json:"poll,omitempty"`
	Pinned    *bool                      `json:"pinned,omitempty"`
	EmittedAt time.Time                  `json:"emitted_at"`
}

type ChatEventHandler func(event ChatEvent)

// ChatEventBus fans chat events out to per-session subscribers. Dispatch is
// synchronous in the publisher's goroutine, so events for one session arrive
// in the order their mutations happened. There is no replay: a handler that
// subscribes late starts with the next event.
type ChatEventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int64]map[int]ChatEventHandler
}

func NewChatEventBus() *ChatEventBus {
	return &ChatEventBus{subs: make(map[int64]map[int]ChatEventHandler)}
}

// Subscribe registers a handler for one session's events and returns the
// matching unsubscribe. Unsubscribing twice is harmless.
func (b *ChatEventBus) Subscribe(sessionID int64, handler ChatEventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handlers, ok := b.subs[sessionID]
	if !ok {
		handlers = make(map[int]ChatEventHandler)
		b.subs[sessionID] = handlers
	}
	handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if handlers, ok := b.subs[sessionID]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
	}
}

// Publish delivers the event to the session's current subscribers.
func (b *ChatEventBus) Publish(event ChatEvent) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]ChatEventHandler, 0, len(b.subs[event.SessionID]))
	for _, handler := range b.subs[event.SessionID] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// SubscriberCount reports the live handler count for a session.
func (b *ChatEventBus) SubscriberCount(sessionID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
