package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard/internal/models"
)

// TodoPatch is a partial todo update; nil fields are left untouched.
type TodoPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Completed   *bool      `json:"completed"`
	Priority    *string    `json:"priority"`
	Tags        *[]string  `json:"tags"`
}

func (s *Store) InsertTodo(t *models.Todo) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO todos (id, title, description, due_date, completed, user_id, priority, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.DueDate, t.Completed, t.UserID, t.Priority, string(tags), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	return nil
}

// GetTodo loads a todo scoped to its owner; another user's todo is
// indistinguishable from a missing one.
func (s *Store) GetTodo(ownerID, id string) (*models.Todo, error) {
	return s.scanTodo(s.conn.QueryRow(`
		SELECT id, title, description, due_date, completed, user_id, priority, tags, created_at
		FROM todos WHERE id = ? AND user_id = ?
	`, id, ownerID))
}

func (s *Store) scanTodo(row rowScanner) (*models.Todo, error) {
	t := &models.Todo{}
	var due sql.NullTime
	var tags string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &t.Completed, &t.UserID, &t.Priority, &tags, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan todo: %w", err)
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return t, nil
}

func (s *Store) ListTodosForOwner(ownerID string) ([]*models.Todo, error) {
	rows, err := s.conn.Query(`
		SELECT id, title, description, due_date, completed, user_id, priority, tags, created_at
		FROM todos WHERE user_id = ? ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	todos := []*models.Todo{}
	for rows.Next() {
		t, err := s.scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// PatchTodo merges the non-nil patch fields into the owner's todo.
// Returns ErrNotFound when the id does not resolve for this owner,
// leaving the target untouched.
func (s *Store) PatchTodo(ownerID, id string, patch TodoPatch) (*models.Todo, error) {
	t, err := s.GetTodo(ownerID, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		t.Tags = *patch.Tags
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.conn.Exec(`
		UPDATE todos SET title = ?, description = ?, due_date = ?, completed = ?, priority = ?, tags = ?
		WHERE id = ? AND user_id = ?
	`, t.Title, t.Description, t.DueDate, t.Completed, t.Priority, string(tags), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTodo(ownerID, id string) error {
	res, err := s.conn.Exec("DELETE FROM todos WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
