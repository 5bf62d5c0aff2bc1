package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard/internal/models"
)

func (s *Store) InsertMeeting(m *models.Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "scheduled"
	}
	if m.Priority == "" {
		m.Priority = "medium"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	attendees, err := json.Marshal(m.Attendees)
	if err != nil {
		return fmt.Errorf("failed to encode attendees: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO meetings (id, title, date, description, attendees, status, location, meeting_link, priority, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Title, m.Date, m.Description, string(attendees), m.Status, m.Location, m.MeetingLink, m.Priority, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (s *Store) GetMeeting(id string) (*models.Meeting, error) {
	return s.scanMeeting(s.conn.QueryRow(`
		SELECT id, title, date, description, attendees, status, location, meeting_link, priority, created_by, created_at
		FROM meetings WHERE id = ?
	`, id))
}

func (s *Store) scanMeeting(row rowScanner) (*models.Meeting, error) {
	m := &models.Meeting{}
	var attendees string
	var location, link sql.NullString
	err := row.Scan(&m.ID, &m.Title, &m.Date, &m.Description, &attendees, &m.Status, &location, &link, &m.Priority, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}
	if err := json.Unmarshal([]byte(attendees), &m.Attendees); err != nil {
		return nil, fmt.Errorf("failed to decode attendees: %w", err)
	}
	if location.Valid {
		m.Location = &location.String
	}
	if link.Valid {
		m.MeetingLink = &link.String
	}
	return m, nil
}

func (s *Store) ListMeetings() ([]*models.Meeting, error) {
	rows, err := s.conn.Query(`
		SELECT id, title, date, description, attendees, status, location, meeting_link, priority, created_by, created_at
		FROM meetings ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	meetings := []*models.Meeting{}
	for rows.Next() {
		m, err := s.scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// UpdateMeeting replaces the mutable fields of a meeting.
func (s *Store) UpdateMeeting(m *models.Meeting) (*models.Meeting, error) {
	attendees, err := json.Marshal(m.Attendees)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attendees: %w", err)
	}

	res, err := s.conn.Exec(`
		UPDATE meetings SET title = ?, date = ?, description = ?, attendees = ?, status = ?, location = ?, meeting_link = ?, priority = ?
		WHERE id = ?
	`, m.Title, m.Date, m.Description, string(attendees), m.Status, m.Location, m.MeetingLink, m.Priority, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetMeeting(m.ID)
}

func (s *Store) DeleteMeeting(id string) error {
	res, err := s.conn.Exec("DELETE FROM meetings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
