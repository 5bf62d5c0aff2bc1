package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/push"
	"github.com/teamboard/teamboard/internal/store"
)

// Server→client event types.
const (
	EventNewMessage         = "newMessage"
	EventMessageUpdate      = "messageUpdate"
	EventMessageDeleted     = "messageDeleted"
	EventMessageReaction    = "messageReaction"
	EventTypingStatus       = "typingStatus"
	EventMessageRead        = "messageRead"
	EventConversationUpdate = "conversationUpdate"
	EventNewMeeting         = "newMeeting"
	EventAck                = "ack"
	EventError              = "error"
)

// Hub maintains live connections and their room membership, and fans
// domain events out to interested connections. A single goroutine
// drains the broadcast queue, so events reach clients in the order the
// relay received them.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	store      *store.Store
	notifier   *push.Notifier
	mu         sync.RWMutex
}

type Client struct {
	userID   string
	username string
	conn     *websocket.Conn
	hub      *Hub
	send     chan ServerEvent
}

// ServerEvent is the wire form of every relay push.
type ServerEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientEvent is the wire form of every client-initiated action.
type ClientEvent struct {
	Type           string   `json:"type"`
	Room           string   `json:"room,omitempty"`
	ID             string   `json:"id,omitempty"` // client-generated message id
	ConversationID string   `json:"conversation_id,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	Emoji          string   `json:"emoji,omitempty"`
	IsTyping       bool     `json:"is_typing,omitempty"`
	ReplyToID      string   `json:"reply_to_id,omitempty"`
	AttachmentIDs  []string `json:"attachment_ids,omitempty"`
}

type delivery struct {
	event   ServerEvent
	userIDs []string  // fan out to every connection of these users
	client  *Client   // or to a single connection (acks, errors)
	all     bool      // or to everyone
}

type ackPayload struct {
	Action    string `json:"action"`
	ClientID  string `json:"client_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type errorPayload struct {
	Action  string `json:"action"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type readPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type deletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type reactionPayload struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Reaction       models.Reaction `json:"reaction"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

func NewHub(st *store.Store, notifier *push.Notifier) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      st,
		notifier:   notifier,
	}
}

// IsUserOnline checks if a user has at least one live connection.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// RoomSize returns the membership count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Join adds the connection to a room's membership set; joining twice
// leaves membership unchanged.
func (h *Hub) Join(room string, c *Client) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// BroadcastAll pushes an event to every connected client. Used for
// meeting announcements.
func (h *Hub) BroadcastAll(eventType string, payload interface{}) {
	h.broadcast <- delivery{event: ServerEvent{Type: eventType, Payload: payload}, all: true}
}

// BroadcastToUsers pushes an event to every connection of the given
// users.
func (h *Hub) BroadcastToUsers(userIDs []string, eventType string, payload interface{}) {
	h.broadcast <- delivery{event: ServerEvent{Type: eventType, Payload: payload}, userIDs: userIDs}
}

// BroadcastToConversation scopes delivery to the participants of the
// affected conversation, never globally.
func (h *Hub) BroadcastToConversation(conversationID, eventType string, payload interface{}) {
	ids, err := h.store.ParticipantIDs(conversationID)
	if err != nil {
		log.Printf("ws: failed to resolve participants of %s: %v", conversationID, err)
		return
	}
	h.BroadcastToUsers(ids, eventType, payload)
}

// NotifyConversationUpdate sends each participant their own view of the
// conversation (unread counters differ per viewer).
func (h *Hub) NotifyConversationUpdate(conversationID string) {
	ids, err := h.store.ParticipantIDs(conversationID)
	if err != nil {
		log.Printf("ws: failed to resolve participants of %s: %v", conversationID, err)
		return
	}
	for _, id := range ids {
		if !h.IsUserOnline(id) {
			continue
		}
		conv, err := h.store.GetConversation(conversationID, id)
		if err != nil {
			log.Printf("ws: failed to load conversation %s: %v", conversationID, err)
			continue
		}
		h.BroadcastToUsers([]string{id}, EventConversationUpdate, conv)
	}
}

// NotifyMessageRead announces that viewerID has read a conversation.
func (h *Hub) NotifyMessageRead(conversationID, viewerID string) {
	h.BroadcastToConversation(conversationID, EventMessageRead, readPayload{
		ConversationID: conversationID,
		UserID:         viewerID,
	})
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; !ok {
				h.clients[client.userID] = make(map[*Client]struct{})
			}
			h.clients[client.userID][client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			// Every connection implicitly joins its owner's room.
			h.Join("user_"+client.userID, client)
			log.Printf("ws: user %s connected (users online: %d)", client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			for room, members := range h.rooms {
				delete(members, client)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws: user %s disconnected (users online: %d)", client.userID, total)

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if d.client != nil {
		// The client may have unregistered while this event sat in the
		// queue; its send channel is closed then.
		if _, ok := h.clients[d.client.userID][d.client]; ok {
			d.client.trySend(d.event)
		}
		return
	}

	if d.all {
		for _, conns := range h.clients {
			for c := range conns {
				c.trySend(d.event)
			}
		}
		return
	}

	seen := make(map[string]struct{}, len(d.userIDs))
	for _, id := range d.userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for c := range h.clients[id] {
			c.trySend(d.event)
		}
	}
}

func (c *Client) trySend(ev ServerEvent) {
	select {
	case c.send <- ev:
	default:
		log.Printf("ws: send buffer full for user %s, dropping %s", c.userID, ev.Type)
	}
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	username, _ := c.Get("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}

	name, _ := username.(string)
	client := &Client{
		userID:   userID.(string),
		username: name,
		conn:     conn,
		hub:      h,
		send:     make(chan ServerEvent, 256),
	}

	h.register <- client

	go client.readPump()
	go client.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendError("", "invalid", "malformed event")
			continue
		}

		switch event.Type {
		case "join":
			c.hub.Join(event.Room, c)
			c.sendAck(event.Type, "", "")
		case "sendMessage":
			c.handleSendMessage(event)
		case "editMessage":
			c.handleEditMessage(event)
		case "deleteMessage":
			c.handleDeleteMessage(event)
		case "addReaction":
			c.handleReaction(event, false)
		case "removeReaction":
			c.handleReaction(event, true)
		case "typingStatus":
			c.handleTypingStatus(event)
		case "markAsRead":
			c.handleMarkAsRead(event)
		default:
			c.sendError(event.Type, "invalid", "unknown event type")
		}
	}
}

func (c *Client) sendAck(action, clientID, messageID string) {
	c.hub.broadcast <- delivery{
		client: c,
		event: ServerEvent{Type: EventAck, Payload: ackPayload{
			Action:    action,
			ClientID:  clientID,
			MessageID: messageID,
		}},
	}
}

func (c *Client) sendError(action, code, message string) {
	c.hub.broadcast <- delivery{
		client: c,
		event: ServerEvent{Type: EventError, Payload: errorPayload{
			Action:  action,
			Code:    code,
			Message: message,
		}},
	}
}

func (c *Client) handleSendMessage(event ClientEvent) {
	if event.ConversationID == "" || (event.Content == "" && len(event.AttachmentIDs) == 0) {
		c.sendError(event.Type, "invalid", "conversation_id and content are required")
		return
	}

	ok, err := c.hub.store.IsParticipant(event.ConversationID, c.userID)
	if err != nil {
		c.sendError(event.Type, "internal", "failed to check conversation")
		return
	}
	if !ok {
		c.sendError(event.Type, "forbidden", "not a participant")
		return
	}

	msg := &models.Message{
		ID:             event.ID,
		ConversationID: event.ConversationID,
		SenderID:       c.userID,
		SenderName:     c.username,
		Content:        event.Content,
	}

	if event.ReplyToID != "" {
		if ref, err := c.hub.store.GetMessage(event.ReplyToID); err == nil {
			msg.ReplyTo = &models.ReplyRef{
				ID:         ref.ID,
				Content:    ref.Content,
				SenderName: ref.SenderName,
			}
		}
	}

	if err := c.hub.store.InsertMessage(msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.sendError(event.Type, "duplicate", "message id already used")
		} else {
			log.Printf("ws: failed to save message: %v", err)
			c.sendError(event.Type, "internal", "failed to save message")
		}
		return
	}

	for _, attID := range event.AttachmentIDs {
		if err := c.hub.store.BindAttachment(msg.ID, attID); err != nil {
			log.Printf("ws: failed to bind attachment %s: %v", attID, err)
		}
	}

	if err := c.hub.store.BumpConversation(msg.ConversationID, c.userID); err != nil {
		log.Printf("ws: failed to bump conversation: %v", err)
	}

	// Reload so the broadcast carries the canonical form.
	canonical, err := c.hub.store.GetMessage(msg.ID)
	if err != nil {
		canonical = msg
	}

	c.hub.BroadcastToConversation(msg.ConversationID, EventNewMessage, canonical)
	c.hub.NotifyConversationUpdate(msg.ConversationID)
	c.sendAck(event.Type, event.ID, msg.ID)

	c.notifyOffline(msg.ConversationID)
}

func (c *Client) notifyOffline(conversationID string) {
	ids, err := c.hub.store.ParticipantIDs(conversationID)
	if err != nil {
		return
	}
	for _, id := range ids {
		if id == c.userID || c.hub.IsUserOnline(id) {
			continue
		}
		c.hub.notifier.NotifyNewMessage(id, c.username)
	}
}

func (c *Client) handleEditMessage(event ClientEvent) {
	if event.MessageID == "" || event.Content == "" {
		c.sendError(event.Type, "invalid", "message_id and content are required")
		return
	}

	current, err := c.hub.store.GetMessage(event.MessageID)
	if err != nil {
		c.sendError(event.Type, "not_found", "message not found")
		return
	}
	if current.SenderID != c.userID {
		c.sendError(event.Type, "forbidden", "can only edit own messages")
		return
	}

	updated, err := c.hub.store.EditMessage(event.MessageID, event.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError(event.Type, "not_found", "message not found")
		} else {
			c.sendError(event.Type, "internal", "failed to update message")
		}
		return
	}

	c.hub.BroadcastToConversation(updated.ConversationID, EventMessageUpdate, updated)
	c.sendAck(event.Type, "", updated.ID)
}

func (c *Client) handleDeleteMessage(event ClientEvent) {
	if event.MessageID == "" {
		c.sendError(event.Type, "invalid", "message_id is required")
		return
	}

	current, err := c.hub.store.GetMessage(event.MessageID)
	if err != nil {
		c.sendError(event.Type, "not_found", "message not found")
		return
	}
	if current.SenderID != c.userID {
		c.sendError(event.Type, "forbidden", "can only delete own messages")
		return
	}

	deleted, err := c.hub.store.SoftDeleteMessage(event.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError(event.Type, "not_found", "message not found")
		} else {
			c.sendError(event.Type, "internal", "failed to delete message")
		}
		return
	}

	c.hub.BroadcastToConversation(deleted.ConversationID, EventMessageDeleted, deletedPayload{
		MessageID:      deleted.ID,
		ConversationID: deleted.ConversationID,
	})
	c.sendAck(event.Type, "", deleted.ID)
}

func (c *Client) handleReaction(event ClientEvent, remove bool) {
	if event.MessageID == "" || (!remove && event.Emoji == "") {
		c.sendError(event.Type, "invalid", "message_id and emoji are required")
		return
	}

	msg, err := c.hub.store.GetMessage(event.MessageID)
	if err != nil {
		c.sendError(event.Type, "not_found", "message not found")
		return
	}

	ok, err := c.hub.store.IsParticipant(msg.ConversationID, c.userID)
	if err != nil {
		c.sendError(event.Type, "internal", "failed to check conversation")
		return
	}
	if !ok {
		c.sendError(event.Type, "forbidden", "not a participant")
		return
	}

	reaction := models.Reaction{UserID: c.userID, Username: c.username}
	if remove {
		if err := c.hub.store.DeleteReaction(event.MessageID, c.userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.sendError(event.Type, "not_found", "reaction not found")
			} else {
				c.sendError(event.Type, "internal", "failed to remove reaction")
			}
			return
		}
		// An empty emoji tells clients to drop this user's reaction.
	} else {
		reaction.Emoji = event.Emoji
		if err := c.hub.store.UpsertReaction(event.MessageID, reaction); err != nil {
			c.sendError(event.Type, "internal", "failed to save reaction")
			return
		}
	}

	c.hub.BroadcastToConversation(msg.ConversationID, EventMessageReaction, reactionPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Reaction:       reaction,
	})
	c.sendAck(event.Type, "", msg.ID)
}

// handleTypingStatus relays an ephemeral typing signal to the other
// participants. Nothing is persisted; clients clear the indicator after
// a few seconds of silence on their own.
func (c *Client) handleTypingStatus(event ClientEvent) {
	if event.ConversationID == "" {
		c.sendError(event.Type, "invalid", "conversation_id is required")
		return
	}

	ok, err := c.hub.store.IsParticipant(event.ConversationID, c.userID)
	if err != nil {
		c.sendError(event.Type, "internal", "failed to check conversation")
		return
	}
	if !ok {
		c.sendError(event.Type, "forbidden", "not a participant")
		return
	}

	ids, err := c.hub.store.ParticipantIDs(event.ConversationID)
	if err != nil {
		return
	}
	others := ids[:0]
	for _, id := range ids {
		if id != c.userID {
			others = append(others, id)
		}
	}
	c.hub.BroadcastToUsers(others, EventTypingStatus, typingPayload{
		ConversationID: event.ConversationID,
		UserID:         c.userID,
		IsTyping:       event.IsTyping,
	})
}

func (c *Client) handleMarkAsRead(event ClientEvent) {
	if event.ConversationID == "" {
		c.sendError(event.Type, "invalid", "conversation_id is required")
		return
	}

	if err := c.hub.store.MarkConversationRead(event.ConversationID, c.userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError(event.Type, "not_found", "conversation not found")
		} else {
			c.sendError(event.Type, "internal", "failed to mark as read")
		}
		return
	}

	c.hub.NotifyMessageRead(event.ConversationID, c.userID)
	c.sendAck(event.Type, "", "")
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("ws: failed to encode %s event: %v", event.Type, err)
				continue
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
