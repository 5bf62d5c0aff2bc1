package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard/internal/models"
)

// InsertMessage persists a message. A client-generated identifier is
// honored so optimistic sends reconcile; otherwise one is assigned.
// The message is bound to exactly one conversation.
func (s *Store) InsertMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" || m.Status == models.StatusSending {
		m.Status = models.StatusSent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var replyID, replyContent, replySender interface{}
	if m.ReplyTo != nil {
		replyID, replyContent, replySender = m.ReplyTo.ID, m.ReplyTo.Content, m.ReplyTo.SenderName
	}

	_, err := s.conn.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, content, status, edited, deleted, reply_to_id, reply_to_content, reply_to_sender, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.Status, replyID, replyContent, replySender, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	for i := range m.Attachments {
		if err := s.AttachToMessage(m.ID, &m.Attachments[i]); err != nil {
			return err
		}
	}
	return nil
}

// AttachToMessage binds an attachment record to its owning message.
func (s *Store) AttachToMessage(messageID string, a *models.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.conn.Exec(`
		INSERT INTO attachments (id, message_id, kind, url, name, size, mime_type, duration, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET message_id = excluded.message_id
	`, a.ID, messageID, a.Kind, a.URL, a.Name, a.Size, a.MimeType, a.Duration, a.Width, a.Height)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// SaveAttachment stores an uploaded attachment that is not yet bound to
// a message; a later send references it by id.
func (s *Store) SaveAttachment(a *models.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.conn.Exec(`
		INSERT INTO attachments (id, message_id, kind, url, name, size, mime_type, duration, width, height)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Kind, a.URL, a.Name, a.Size, a.MimeType, a.Duration, a.Width, a.Height)
	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}
	return nil
}

// BindAttachment claims a previously uploaded attachment for a message.
func (s *Store) BindAttachment(messageID, attachmentID string) error {
	res, err := s.conn.Exec(
		"UPDATE attachments SET message_id = ? WHERE id = ? AND message_id IS NULL",
		messageID, attachmentID,
	)
	if err != nil {
		return fmt.Errorf("failed to bind attachment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetMessage(id string) (*models.Message, error) {
	m, err := s.scanMessage(s.conn.QueryRow(`
		SELECT m.id, m.conversation_id, m.sender_id, u.username, u.display_name, m.content, m.status,
		       m.edited, m.deleted, m.reply_to_id, m.reply_to_content, m.reply_to_sender, m.created_at
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadMessageExtras(m); err != nil {
		return nil, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var displayName, replyID, replyContent, replySender sql.NullString
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &displayName, &m.Content, &m.Status,
		&m.Edited, &m.Deleted, &replyID, &replyContent, &replySender, &m.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if displayName.Valid && displayName.String != "" {
		m.SenderName = displayName.String
	}
	if replyID.Valid {
		m.ReplyTo = &models.ReplyRef{
			ID:         replyID.String,
			Content:    replyContent.String,
			SenderName: replySender.String,
		}
	}
	return m, nil
}

func (s *Store) loadMessageExtras(m *models.Message) error {
	reactions, err := s.ReactionsForMessage(m.ID)
	if err != nil {
		return err
	}
	m.Reactions = reactions

	rows, err := s.conn.Query(`
		SELECT id, kind, url, name, size, mime_type, duration, width, height
		FROM attachments WHERE message_id = ?
	`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		var mime sql.NullString
		var duration, width, height sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Kind, &a.URL, &a.Name, &a.Size, &mime, &duration, &width, &height); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if mime.Valid {
			a.MimeType = &mime.String
		}
		if duration.Valid {
			d := int(duration.Int64)
			a.Duration = &d
		}
		if width.Valid {
			w := int(width.Int64)
			a.Width = &w
		}
		if height.Valid {
			h := int(height.Int64)
			a.Height = &h
		}
		m.Attachments = append(m.Attachments, a)
	}
	return rows.Err()
}

// ListMessages returns messages oldest first. An empty conversationID
// lists across all conversations.
func (s *Store) ListMessages(conversationID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, u.display_name, m.content, m.status,
		       m.edited, m.deleted, m.reply_to_id, m.reply_to_content, m.reply_to_sender, m.created_at
		FROM messages m JOIN users u ON u.id = m.sender_id
	`
	args := []interface{}{}
	if conversationID != "" {
		query += " WHERE m.conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY m.created_at, m.rowid LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages := []*models.Message{}
	for rows.Next() {
		m, err := s.scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range messages {
		if err := s.loadMessageExtras(m); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// EditMessage replaces the body and marks the message edited. Unknown
// or already deleted messages surface ErrNotFound instead of a silent
// no-op.
func (s *Store) EditMessage(id, content string) (*models.Message, error) {
	res, err := s.conn.Exec(
		"UPDATE messages SET content = ?, edited = 1 WHERE id = ? AND deleted = 0",
		content, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(id)
}

// SoftDeleteMessage marks the message deleted and replaces its content
// with the placeholder. The record stays so replies keep their context.
func (s *Store) SoftDeleteMessage(id string) (*models.Message, error) {
	res, err := s.conn.Exec(
		"UPDATE messages SET deleted = 1, content = ? WHERE id = ? AND deleted = 0",
		models.DeletedPlaceholder, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(id)
}

// UpsertReaction records a user's reaction on a message, replacing any
// prior reaction by the same user.
func (s *Store) UpsertReaction(messageID string, r models.Reaction) error {
	var exists bool
	if err := s.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)", messageID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to query message: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	_, err := s.conn.Exec(`
		INSERT INTO reactions (message_id, user_id, emoji, username) VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, user_id) DO UPDATE SET emoji = excluded.emoji, username = excluded.username
	`, messageID, r.UserID, r.Emoji, r.Username)
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteReaction(messageID, userID string) error {
	res, err := s.conn.Exec(
		"DELETE FROM reactions WHERE message_id = ? AND user_id = ?",
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ReactionsForMessage(messageID string) ([]models.Reaction, error) {
	rows, err := s.conn.Query(
		"SELECT emoji, user_id, username FROM reactions WHERE message_id = ? ORDER BY created_at, rowid",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	var reactions []models.Reaction
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.Emoji, &r.UserID, &r.Username); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

// MarkConversationRead zeroes the viewer's unread counter and promotes
// the other participants' sent/delivered messages to read.
func (s *Store) MarkConversationRead(conversationID, viewerID string) error {
	ok, err := s.IsParticipant(conversationID, viewerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if _, err := s.conn.Exec(`
		UPDATE conversation_participants SET unread_count = 0, last_read_at = CURRENT_TIMESTAMP
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, viewerID); err != nil {
		return fmt.Errorf("failed to reset unread counter: %w", err)
	}

	if _, err := s.conn.Exec(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND sender_id != ? AND status IN (?, ?) AND deleted = 0
	`, models.StatusRead, conversationID, viewerID, models.StatusSent, models.StatusDelivered); err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}
