package chatws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/saeid-a/GroupCoachBack/internal/models"
	"github.com/saeid-a/GroupCoachBack/internal/services"
)

// Hub fans session chat events out to the websocket clients watching each
// session. The first client for a session attaches the hub to that session's
// event stream; the last one to leave detaches it.
type Hub struct {
	events     *services.ChatEventBus
	rooms      map[int64]map[*Client]struct{}
	unsubs     map[int64]func()
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
}

type outbound struct {
	sessionID int64
	payload   []byte
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	sessionID int64
	send      chan []byte
}

// chatSender is the slice of the chat service driven over the socket. The
// rest of the chat surface stays on the REST routes.
type chatSender interface {
	SendMessage(ctx context.Context, sessionID, userID int64, input services.SendMessageInput) (*models.SessionChatMessage, error)
	AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*services.ReactionUpdate, error)
	VotePoll(ctx context.Context, messageID, userID int64, optionIDs []string) (*models.SessionChatMessage, error)
}

func NewHub(events *services.ChatEventBus) *Hub {
	return &Hub{
		events:     events,
		rooms:      make(map[int64]map[*Client]struct{}),
		unsubs:     make(map[int64]func()),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, sessionID int64) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		userID:    userID,
		sessionID: sessionID,
		send:      make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			room, ok := h.rooms[client.sessionID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[client.sessionID] = room
				h.attach(client.sessionID)
			}
			room[client] = struct{}{}
		case client := <-h.unregister:
			room, ok := h.rooms[client.sessionID]
			if !ok {
				continue
			}
			if _, exists := room[client]; exists {
				delete(room, client)
				close(client.send)
			}
			if len(room) == 0 {
				h.closeRoom(client.sessionID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// attach subscribes the hub to one session's event stream. The handler runs
// on the publishing goroutine, so it hands the encoded event to the hub loop
// instead of touching room state itself.
func (h *Hub) attach(sessionID int64) {
	h.unsubs[sessionID] = h.events.Subscribe(sessionID, func(event services.ChatEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("chat hub encode event for session %d: %v", sessionID, err)
			return
		}
		select {
		case h.broadcast <- outbound{sessionID: sessionID, payload: payload}:
		default:
			log.Printf("chat hub broadcast backlog full, dropping %s for session %d", event.Type, sessionID)
		}
	})
}

func (h *Hub) closeRoom(sessionID int64) {
	delete(h.rooms, sessionID)
	if unsubscribe, ok := h.unsubs[sessionID]; ok {
		unsubscribe()
		delete(h.unsubs, sessionID)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) deliver(message outbound) {
	room, ok := h.rooms[message.sessionID]
	if !ok {
		return
	}
	for client := range room {
		select {
		case client.send <- message.payload:
		default:
			delete(room, client)
			close(client.send)
		}
	}
	if len(room) == 0 {
		h.closeRoom(message.sessionID)
	}
}

// inboundMessage is what clients send over the socket.
type inboundMessage struct {
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	ReplyToID *int64   `json:"reply_to_id,omitempty"`
	MessageID int64    `json:"message_id,omitempty"`
	Emoji     string   `json:"emoji,omitempty"`
	OptionIDs []string `json:"option_ids,omitempty"`
}

type socketError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (c *Client) ReadPump(service chatSender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	actorID, err := strconv.ParseInt(c.userID, 10, 64)
	if err != nil {
		c.writeError("invalid user")
		return
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming inboundMessage
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid message payload")
			continue
		}

		switch incoming.Type {
		case "message":
			_, err = service.SendMessage(context.Background(), c.sessionID, actorID, services.SendMessageInput{
				Content:   incoming.Content,
				ReplyToID: incoming.ReplyToID,
			})
		case "reaction":
			_, err = service.AddReaction(context.Background(), incoming.MessageID, actorID, incoming.Emoji)
		case "poll_vote":
			_, err = service.VotePoll(context.Background(), incoming.MessageID, actorID, incoming.OptionIDs)
		default:
			c.writeError("unsupported message type")
			continue
		}
		if err != nil {
			c.writeError(err.Error())
		}
		// Success needs no ack: the mutation comes back through the event
		// stream like everyone else's.
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeError(message string) {
	payload, err := json.Marshal(socketError{Type: "error", Error: message})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}
