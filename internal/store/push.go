package store

import "fmt"

// PushSubscription is a stored Web Push endpoint for one of a user's
// browsers.
type PushSubscription struct {
	UserID    string `json:"-"`
	Endpoint  string `json:"endpoint"`
	KeyP256dh string `json:"p256dh"`
	KeyAuth   string `json:"auth"`
}

// SavePushSubscription registers or refreshes a subscription endpoint.
func (s *Store) SavePushSubscription(sub PushSubscription) error {
	_, err := s.conn.Exec(`
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, revoked_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, p256dh = excluded.p256dh, auth = excluded.auth, revoked_at = NULL
	`, sub.Endpoint, sub.UserID, sub.KeyP256dh, sub.KeyAuth)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *Store) DeletePushSubscription(userID, endpoint string) error {
	res, err := s.conn.Exec(
		"DELETE FROM push_subscriptions WHERE endpoint = ? AND user_id = ?",
		endpoint, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePushEndpoint removes an endpoint regardless of owner. Used when
// a push service reports the subscription gone.
func (s *Store) DeletePushEndpoint(endpoint string) error {
	_, err := s.conn.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	return err
}

func (s *Store) SubscriptionsForUser(userID string) ([]PushSubscription, error) {
	rows, err := s.conn.Query(
		"SELECT endpoint, user_id, p256dh, auth FROM push_subscriptions WHERE user_id = ? AND revoked_at IS NULL",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.UserID, &sub.KeyP256dh, &sub.KeyAuth); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
