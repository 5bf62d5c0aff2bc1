package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/push"
	"github.com/teamboard/teamboard/internal/store"
)

type UserHandler struct {
	store         *store.Store
	onlineChecker OnlineChecker
	notifier      *push.Notifier
	uploadDir     string
	maxUploadSize int64
}

func NewUserHandler(st *store.Store, onlineChecker OnlineChecker, notifier *push.Notifier, uploadDir string, maxUploadSize int64) *UserHandler {
	return &UserHandler{
		store:         st,
		onlineChecker: onlineChecker,
		notifier:      notifier,
		uploadDir:     uploadDir,
		maxUploadSize: maxUploadSize,
	}
}

// GetUsers lists users other than the caller, optionally filtered by a
// search query.
func (h *UserHandler) GetUsers(c *gin.Context) {
	userID := c.GetString("user_id")
	query := strings.TrimSpace(c.Query("q"))

	users, err := h.store.SearchUsers(userID, query, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	type userWithPresence struct {
		*models.User
		IsOnline bool `json:"is_online"`
	}

	out := make([]userWithPresence, 0, len(users))
	for _, u := range users {
		out = append(out, userWithPresence{
			User:     u,
			IsOnline: h.onlineChecker != nil && h.onlineChecker.IsUserOnline(u.ID),
		})
	}

	c.JSON(http.StatusOK, out)
}

// GetMyProfile returns the caller's profile.
func (h *UserHandler) GetMyProfile(c *gin.Context) {
	user, err := h.store.GetUser(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// UpdateProfile applies an avatar/display-name edit. All other user
// fields are immutable after registration.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.store.UpdateProfile(c.GetString("user_id"), req.DisplayName, req.AvatarURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UploadFile stores an uploaded file and returns the attachment record;
// a later sendMessage references it by id to bind it to a message.
func (h *UserHandler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	kind := "file"
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = "image"
	case strings.HasPrefix(contentType, "audio/"):
		kind = "audio"
	case strings.HasPrefix(contentType, "video/"):
		kind = "video"
	}

	filename := strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + header.Filename
	if err := c.SaveUploadedFile(header, h.uploadDir+"/"+filename); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	attachment := &models.Attachment{
		Kind: kind,
		URL:  "/api/files/" + filename,
		Name: header.Filename,
		Size: header.Size,
	}
	if contentType != "" {
		attachment.MimeType = &contentType
	}

	if err := h.store.SaveAttachment(attachment); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file record"})
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

type PushSubscribeRequest struct {
	Endpoint  string `json:"endpoint" binding:"required"`
	KeyP256dh string `json:"p256dh" binding:"required"`
	KeyAuth   string `json:"auth" binding:"required"`
}

// SubscribePush registers a Web Push endpoint for the caller.
func (h *UserHandler) SubscribePush(c *gin.Context) {
	var req PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub := store.PushSubscription{
		UserID:    c.GetString("user_id"),
		Endpoint:  req.Endpoint,
		KeyP256dh: req.KeyP256dh,
		KeyAuth:   req.KeyAuth,
	}
	if err := h.store.SavePushSubscription(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (h *UserHandler) UnsubscribePush(c *gin.Context) {
	var req PushUnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.store.DeletePushSubscription(c.GetString("user_id"), req.Endpoint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}

// GetVAPIDKey exposes the public VAPID key so browsers can subscribe.
func (h *UserHandler) GetVAPIDKey(c *gin.Context) {
	key := h.notifier.VAPIDPublicKey()
	if key == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "push notifications disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key})
}
