package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard/internal/models"
)

// CreateConversation starts a conversation. The creator becomes an
// admin participant. A direct conversation between the same two users
// is reused instead of duplicated.
func (s *Store) CreateConversation(kind, name, creatorID string, participantIDs []string) (*models.Conversation, error) {
	members := dedupe(append([]string{creatorID}, participantIDs...))

	if kind == "direct" && len(members) == 2 {
		existing, err := s.findDirectConversation(members[0], members[1])
		if err == nil {
			return s.GetConversation(existing, creatorID)
		}
		if err != ErrNotFound {
			return nil, err
		}
	}

	for _, id := range members {
		exists, err := s.UserExists(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}

	convID := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO conversations (id, kind, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		convID, kind, name, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, id := range members {
		role := "member"
		if id == creatorID {
			role = "admin"
		}
		if _, err := tx.Exec(
			"INSERT INTO conversation_participants (conversation_id, user_id, role) VALUES (?, ?, ?)",
			convID, id, role,
		); err != nil {
			return nil, fmt.Errorf("failed to add participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation: %w", err)
	}

	return s.GetConversation(convID, creatorID)
}

func (s *Store) findDirectConversation(userA, userB string) (string, error) {
	var id string
	err := s.conn.QueryRow(`
		SELECT c.id FROM conversations c
		JOIN conversation_participants pa ON pa.conversation_id = c.id AND pa.user_id = ?
		JOIN conversation_participants pb ON pb.conversation_id = c.id AND pb.user_id = ?
		WHERE c.kind = 'direct'
		LIMIT 1
	`, userA, userB).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to query conversation: %w", err)
	}
	return id, nil
}

// GetConversation loads a conversation with participants and the
// denormalized last-message summary. The unread counter is the
// viewer's own.
func (s *Store) GetConversation(id, viewerID string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id}
	err := s.conn.QueryRow(
		"SELECT kind, name, pinned, muted, archived, created_at, updated_at FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.Kind, &conv.Name, &conv.Pinned, &conv.Muted, &conv.Archived, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT u.id, u.username, u.display_name, u.avatar_url, cp.role, cp.unread_count
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = ?
		ORDER BY cp.joined_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		var displayName, avatarURL sql.NullString
		var unread int
		if err := rows.Scan(&p.UserID, &p.Name, &displayName, &avatarURL, &p.Role, &unread); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if displayName.Valid && displayName.String != "" {
			p.Name = displayName.String
		}
		if avatarURL.Valid {
			p.Avatar = &avatarURL.String
		}
		if p.UserID == viewerID {
			conv.UnreadCount = unread
		}
		conv.Participants = append(conv.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last models.LastMessage
	err = s.conn.QueryRow(`
		SELECT content, sender_id, status, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, id).Scan(&last.Content, &last.SenderID, &last.Status, &last.Timestamp)
	if err == nil {
		conv.LastMessage = &last
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query last message: %w", err)
	}

	return conv, nil
}

// ListConversationsForUser returns the viewer's conversations, most
// recently active first. Archived conversations are included; the
// client decides how to render them.
func (s *Store) ListConversationsForUser(userID string) ([]*models.Conversation, error) {
	rows, err := s.conn.Query(`
		SELECT c.id FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := []*models.Conversation{}
	for _, id := range ids {
		conv, err := s.GetConversation(id, userID)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *Store) ParticipantIDs(conversationID string) ([]string, error) {
	rows, err := s.conn.Query(
		"SELECT user_id FROM conversation_participants WHERE conversation_id = ?",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) IsParticipant(conversationID, userID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?)",
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query participant: %w", err)
	}
	return exists, nil
}

// UpdateConversationFlags applies a partial flag change; nil fields are
// left untouched.
func (s *Store) UpdateConversationFlags(id string, pinned, muted, archived *bool) error {
	var exists bool
	if err := s.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to query conversation: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	set := func(column string, value *bool) error {
		if value == nil {
			return nil
		}
		_, err := s.conn.Exec(
			"UPDATE conversations SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			*value, id,
		)
		return err
	}

	if err := set("pinned", pinned); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if err := set("muted", muted); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if err := set("archived", archived); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// BumpConversation refreshes activity time and increments unread
// counters for every participant except the sender. Called after each
// message insert.
func (s *Store) BumpConversation(conversationID, senderID string) error {
	if _, err := s.conn.Exec(
		"UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		conversationID,
	); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if _, err := s.conn.Exec(
		"UPDATE conversation_participants SET unread_count = unread_count + 1 WHERE conversation_id = ? AND user_id != ?",
		conversationID, senderID,
	); err != nil {
		return fmt.Errorf("failed to update unread counters: %w", err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
