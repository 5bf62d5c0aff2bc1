package push

import (
	"encoding/json"
	"log"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/teamboard/teamboard/internal/store"
)

// Notifier sends Web Push notifications to subscribed users. The relay
// has no acknowledgement protocol, so push is the nudge that brings a
// momentarily disconnected client back for a REST refetch.
type Notifier struct {
	store           *store.Store
	vapidPublicKey  string
	vapidPrivateKey string
}

// NewNotifier creates a push Notifier. Returns nil if VAPID keys are
// empty; a nil Notifier is safe to call.
func NewNotifier(st *store.Store, vapidPublicKey, vapidPrivateKey string) *Notifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	return &Notifier{
		store:           st,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

// VAPIDPublicKey returns the public VAPID key for the frontend.
func (n *Notifier) VAPIDPublicKey() string {
	if n == nil {
		return ""
	}
	return n.vapidPublicKey
}

// payload is the JSON structure sent inside the push notification.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// NotifyNewMessage pushes a "new message" notification to every
// subscription of userID.
func (n *Notifier) NotifyNewMessage(userID, senderName string) {
	if n == nil {
		return
	}

	subs, err := n.store.SubscriptionsForUser(userID)
	if err != nil {
		log.Printf("push: failed to query subscriptions for user %s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	p := payload{
		Title: "New message",
		Body:  "New message from " + senderName,
		URL:   "/",
	}
	data, _ := json.Marshal(p)

	log.Printf("push: sending notification to %d subscription(s) for user %s", len(subs), userID)
	for _, sub := range subs {
		go n.sendToSubscription(sub, data)
	}
}

func (n *Notifier) sendToSubscription(sub store.PushSubscription, data []byte) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.KeyP256dh,
			Auth:   sub.KeyAuth,
		},
	}

	resp, err := webpush.SendNotification(data, s, &webpush.Options{
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		Subscriber:      "mailto:push@teamboard.local",
		TTL:             86400,
	})
	if err != nil {
		log.Printf("push: failed to send to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// 410 Gone or 404 means the subscription is expired — clean it up
	if resp.StatusCode == 410 || resp.StatusCode == 404 {
		n.store.DeletePushEndpoint(sub.Endpoint)
		log.Printf("push: removed expired subscription %s (status %d)", sub.Endpoint, resp.StatusCode)
	}
}
