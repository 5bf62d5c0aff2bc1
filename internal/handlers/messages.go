package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/store"
)

// OnlineChecker reports live connection state for presence decoration.
type OnlineChecker interface {
	IsUserOnline(userID string) bool
}

// Broadcaster lets REST handlers hand events to the realtime relay so
// connected viewers see mutations without polling.
type Broadcaster interface {
	BroadcastAll(eventType string, payload interface{})
	NotifyConversationUpdate(conversationID string)
	NotifyMessageRead(conversationID, viewerID string)
}

type MessageHandler struct {
	store         *store.Store
	onlineChecker OnlineChecker
	broadcaster   Broadcaster
}

func NewMessageHandler(st *store.Store, onlineChecker OnlineChecker, broadcaster Broadcaster) *MessageHandler {
	return &MessageHandler{store: st, onlineChecker: onlineChecker, broadcaster: broadcaster}
}

// GetMessages retrieves messages, optionally scoped to one conversation.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Query("conversation_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.store.ListMessages(conversationID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// GetConversations lists the caller's conversations with live presence.
func (h *MessageHandler) GetConversations(c *gin.Context) {
	userID := c.GetString("user_id")

	conversations, err := h.store.ListConversationsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch conversations"})
		return
	}

	for _, conv := range conversations {
		h.decoratePresence(conv)
	}

	c.JSON(http.StatusOK, conversations)
}

func (h *MessageHandler) decoratePresence(conv *models.Conversation) {
	if h.onlineChecker == nil {
		return
	}
	for i := range conv.Participants {
		conv.Participants[i].IsOnline = h.onlineChecker.IsUserOnline(conv.Participants[i].UserID)
	}
}

type CreateConversationRequest struct {
	Kind           string   `json:"type" binding:"required,oneof=direct group"`
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
}

// CreateConversation starts a direct or group conversation.
func (h *MessageHandler) CreateConversation(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	for _, id := range req.ParticipantIDs {
		if id == userID && len(req.ParticipantIDs) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create conversation with yourself"})
			return
		}
	}

	conv, err := h.store.CreateConversation(req.Kind, req.Name, userID, req.ParticipantIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	h.decoratePresence(conv)
	if h.broadcaster != nil {
		h.broadcaster.NotifyConversationUpdate(conv.ID)
	}

	c.JSON(http.StatusCreated, conv)
}

type UpdateConversationRequest struct {
	Pinned   *bool `json:"pinned"`
	Muted    *bool `json:"muted"`
	Archived *bool `json:"archived"`
}

// UpdateConversation changes the pinned/muted/archived flags.
// Conversations are never hard-deleted; archiving is the terminal
// state.
func (h *MessageHandler) UpdateConversation(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("id")

	ok, err := h.store.IsParticipant(conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check conversation"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.store.UpdateConversationFlags(conversationID, req.Pinned, req.Muted, req.Archived); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update conversation"})
		return
	}

	conv, err := h.store.GetConversation(conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch conversation"})
		return
	}

	h.decoratePresence(conv)
	if h.broadcaster != nil {
		h.broadcaster.NotifyConversationUpdate(conversationID)
	}

	c.JSON(http.StatusOK, conv)
}

// MarkConversationRead zeroes the caller's unread counter over REST;
// the relay announces the read receipt to the other participants.
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("id")

	if err := h.store.MarkConversationRead(conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark as read"})
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.NotifyMessageRead(conversationID, userID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
