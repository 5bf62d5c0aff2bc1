package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/store"
)

type MeetingHandler struct {
	store       *store.Store
	broadcaster Broadcaster
}

func NewMeetingHandler(st *store.Store, broadcaster Broadcaster) *MeetingHandler {
	return &MeetingHandler{store: st, broadcaster: broadcaster}
}

type MeetingRequest struct {
	Title       string    `json:"title" binding:"required"`
	Date        time.Time `json:"date" binding:"required"`
	Description string    `json:"description"`
	Attendees   []string  `json:"attendees"`
	Status      string    `json:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
	Location    *string   `json:"location"`
	MeetingLink *string   `json:"meeting_link"`
	Priority    string    `json:"priority" binding:"omitempty,oneof=low medium high"`
}

func (h *MeetingHandler) GetMeetings(c *gin.Context) {
	meetings, err := h.store.ListMeetings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch meetings"})
		return
	}
	c.JSON(http.StatusOK, meetings)
}

// CreateMeeting schedules a meeting and announces it to every
// connected client.
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	userID := c.GetString("user_id")

	var req MeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	meeting := &models.Meeting{
		Title:       req.Title,
		Date:        req.Date,
		Description: req.Description,
		Attendees:   req.Attendees,
		Status:      req.Status,
		Location:    req.Location,
		MeetingLink: req.MeetingLink,
		Priority:    req.Priority,
		CreatedBy:   userID,
	}
	if meeting.Attendees == nil {
		meeting.Attendees = []string{}
	}

	if err := h.store.InsertMeeting(meeting); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create meeting"})
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastAll("newMeeting", meeting)
	}

	c.JSON(http.StatusCreated, meeting)
}

// UpdateMeeting replaces a meeting's mutable fields. Updates and
// deletes happen over REST only; clients refetch rather than receiving
// a realtime edit.
func (h *MeetingHandler) UpdateMeeting(c *gin.Context) {
	var req MeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	existing, err := h.store.GetMeeting(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch meeting"})
		return
	}

	existing.Title = req.Title
	existing.Date = req.Date
	existing.Description = req.Description
	existing.Attendees = req.Attendees
	if existing.Attendees == nil {
		existing.Attendees = []string{}
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	existing.Location = req.Location
	existing.MeetingLink = req.MeetingLink
	if req.Priority != "" {
		existing.Priority = req.Priority
	}

	updated, err := h.store.UpdateMeeting(existing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update meeting"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *MeetingHandler) DeleteMeeting(c *gin.Context) {
	if err := h.store.DeleteMeeting(c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete meeting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
