package models

import "time"

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Participant is a conversation member together with live presence
// state filled in by the relay.
type Participant struct {
	UserID   string  `json:"id"`
	Name     string  `json:"name"`
	Avatar   *string `json:"avatar,omitempty"`
	Role     string  `json:"role"` // admin, member
	IsOnline bool    `json:"is_online"`
	Typing   bool    `json:"typing,omitempty"`
}

// LastMessage is the denormalized summary carried on a conversation.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID           string        `json:"id"`
	Kind         string        `json:"type"` // direct, group
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
	LastMessage  *LastMessage  `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	Pinned       bool          `json:"pinned"`
	Muted        bool          `json:"muted"`
	Archived     bool          `json:"archived"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Message delivery statuses. Transitions are monotonic
// (sending -> sent -> delivered -> read) except for failed.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// DeletedPlaceholder replaces the body of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"sender_name"`
}

type Reaction struct {
	Emoji    string `json:"emoji"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type Attachment struct {
	ID       string  `json:"id"`
	Kind     string  `json:"type"` // image, file, audio, video
	URL      string  `json:"url"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	MimeType *string `json:"mime_type,omitempty"`
	Duration *int    `json:"duration,omitempty"`
	Width    *int    `json:"width,omitempty"`
	Height   *int    `json:"height,omitempty"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	Content        string       `json:"content"`
	Status         string       `json:"status"`
	Edited         bool         `json:"edited"`
	Deleted        bool         `json:"deleted"`
	ReplyTo        *ReplyRef    `json:"reply_to,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	CreatedAt      time.Time    `json:"timestamp"`
}

type Meeting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Attendees   []string  `json:"attendees"`
	Status      string    `json:"status"` // scheduled, completed, cancelled
	Location    *string   `json:"location,omitempty"`
	MeetingLink *string   `json:"meeting_link,omitempty"`
	Priority    string    `json:"priority"` // low, medium, high
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type Todo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	UserID      string     `json:"user_id"`
	Priority    string     `json:"priority"` // low, medium, high
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
