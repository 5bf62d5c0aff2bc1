package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard/internal/models"
)

// CreateUser inserts a new user. Returns ErrDuplicate when the email is
// already registered.
func (s *Store) CreateUser(username, email, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.conn.Exec(
		"INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, passwordHash, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns the user and their stored password hash.
func (s *Store) GetUserByEmail(email string) (*models.User, string, error) {
	user := &models.User{}
	var hash string
	var displayName, avatarURL sql.NullString

	err := s.conn.QueryRow(
		"SELECT id, username, email, password_hash, display_name, avatar_url, created_at FROM users WHERE email = ?",
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &hash, &displayName, &avatarURL, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to query user: %w", err)
	}

	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	return user, hash, nil
}

func (s *Store) GetUser(id string) (*models.User, error) {
	user := &models.User{}
	var displayName, avatarURL sql.NullString

	err := s.conn.QueryRow(
		"SELECT id, username, email, display_name, avatar_url, created_at FROM users WHERE id = ?",
		id,
	).Scan(&user.ID, &user.Username, &user.Email, &displayName, &avatarURL, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	return user, nil
}

func (s *Store) UserExists(id string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return exists, nil
}

// UpdateProfile applies a partial profile edit; nil fields are left as is.
func (s *Store) UpdateProfile(id string, displayName, avatarURL *string) (*models.User, error) {
	if displayName != nil {
		if _, err := s.conn.Exec(
			"UPDATE users SET display_name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			*displayName, id,
		); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	if avatarURL != nil {
		if _, err := s.conn.Exec(
			"UPDATE users SET avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			*avatarURL, id,
		); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return s.GetUser(id)
}

// SearchUsers lists users other than excludeID, optionally filtered by a
// case-insensitive username/display-name match.
func (s *Store) SearchUsers(excludeID, query string, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if query != "" {
		pattern := "%" + query + "%"
		rows, err = s.conn.Query(`
			SELECT id, username, email, display_name, avatar_url, created_at FROM users
			WHERE id != ? AND (username LIKE ? OR display_name LIKE ?)
			ORDER BY username LIMIT ?
		`, excludeID, pattern, pattern, limit)
	} else {
		rows, err = s.conn.Query(`
			SELECT id, username, email, display_name, avatar_url, created_at FROM users
			WHERE id != ? ORDER BY username LIMIT ?
		`, excludeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user := &models.User{}
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &displayName, &avatarURL, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if displayName.Valid {
			user.DisplayName = &displayName.String
		}
		if avatarURL.Valid {
			user.AvatarURL = &avatarURL.String
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
