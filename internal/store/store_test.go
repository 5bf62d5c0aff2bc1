package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/teamboard/teamboard/internal/models"
)

var testStore *Store

func TestMain(m *testing.M) {
	var err error
	testStore, err = Open(":memory:")
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testStore.Close()
	os.Exit(code)
}

func clearTestData() {
	testStore.conn.Exec("DELETE FROM reactions")
	testStore.conn.Exec("DELETE FROM attachments")
	testStore.conn.Exec("DELETE FROM messages")
	testStore.conn.Exec("DELETE FROM conversation_participants")
	testStore.conn.Exec("DELETE FROM conversations")
	testStore.conn.Exec("DELETE FROM push_subscriptions")
	testStore.conn.Exec("DELETE FROM meetings")
	testStore.conn.Exec("DELETE FROM todos")
	testStore.conn.Exec("DELETE FROM users")
}

func mustUser(t *testing.T, username, email string) *models.User {
	t.Helper()
	user, err := testStore.CreateUser(username, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return user
}

func mustDirectConversation(t *testing.T, a, b *models.User) *models.Conversation {
	t.Helper()
	conv, err := testStore.CreateConversation("direct", "", a.ID, []string{b.ID})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	clearTestData()

	if _, err := testStore.CreateUser("alice", "alice@example.com", "hash1"); err != nil {
		t.Fatalf("First CreateUser failed: %v", err)
	}

	_, err := testStore.CreateUser("alice2", "alice@example.com", "hash2")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Duplicate email error = %v, want ErrDuplicate", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	clearTestData()

	created := mustUser(t, "bob", "bob@example.com")

	user, hash, err := testStore.GetUserByEmail("bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("ID = %s, want %s", user.ID, created.ID)
	}
	if hash != "hash" {
		t.Errorf("hash = %q, want %q", hash, "hash")
	}

	if _, _, err := testStore.GetUserByEmail("nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Unknown email error = %v, want ErrNotFound", err)
	}
}

func TestDirectConversationReuse(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")

	first := mustDirectConversation(t, alice, bob)

	// Same pair from either side resolves to the same conversation.
	second, err := testStore.CreateConversation("direct", "", bob.ID, []string{alice.ID})
	if err != nil {
		t.Fatalf("Second CreateConversation failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Direct conversation duplicated: %s vs %s", second.ID, first.ID)
	}

	// Group conversations are never deduplicated.
	groupA, err := testStore.CreateConversation("group", "team", alice.ID, []string{bob.ID})
	if err != nil {
		t.Fatalf("Group CreateConversation failed: %v", err)
	}
	groupB, err := testStore.CreateConversation("group", "team", alice.ID, []string{bob.ID})
	if err != nil {
		t.Fatalf("Group CreateConversation failed: %v", err)
	}
	if groupA.ID == groupB.ID {
		t.Error("Group conversations should not be deduplicated")
	}
}

func TestCreateConversationUnknownParticipant(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")

	_, err := testStore.CreateConversation("direct", "", alice.ID, []string{"no-such-user"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Unknown participant error = %v, want ErrNotFound", err)
	}
}

func TestConversationRoles(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")

	conv := mustDirectConversation(t, alice, bob)

	roles := map[string]string{}
	for _, p := range conv.Participants {
		roles[p.UserID] = p.Role
	}
	if roles[alice.ID] != "admin" {
		t.Errorf("Creator role = %q, want admin", roles[alice.ID])
	}
	if roles[bob.ID] != "member" {
		t.Errorf("Participant role = %q, want member", roles[bob.ID])
	}
}

func TestInsertMessageHonorsClientID(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	msg := &models.Message{
		ID:             "client-generated-id",
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		SenderName:     alice.Username,
		Content:        "Hello!",
	}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	saved, err := testStore.GetMessage("client-generated-id")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if saved.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", saved.Content, "Hello!")
	}
	if saved.Status != models.StatusSent {
		t.Errorf("Status = %q, want %q", saved.Status, models.StatusSent)
	}

	// A message without a client id gets one assigned.
	anon := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "Second"}
	if err := testStore.InsertMessage(anon); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if anon.ID == "" {
		t.Error("Expected generated message id")
	}
}

func TestListMessagesOrder(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	base := time.Now().UTC().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		msg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       alice.ID,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := testStore.InsertMessage(msg); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	messages, err := testStore.ListMessages(conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Content != want {
			t.Errorf("messages[%d].Content = %q, want %q", i, messages[i].Content, want)
		}
	}
}

func TestEditMessage(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	msg := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "typo"}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	updated, err := testStore.EditMessage(msg.ID, "fixed")
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if updated.Content != "fixed" {
		t.Errorf("Content = %q, want %q", updated.Content, "fixed")
	}
	if !updated.Edited {
		t.Error("Expected edited flag to be set")
	}

	if _, err := testStore.EditMessage("no-such-message", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit unknown message error = %v, want ErrNotFound", err)
	}
}

func TestSoftDeleteMessage(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	msg := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "secret"}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	deleted, err := testStore.SoftDeleteMessage(msg.ID)
	if err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}
	if !deleted.Deleted {
		t.Error("Expected deleted flag to be set")
	}
	if deleted.Content != models.DeletedPlaceholder {
		t.Errorf("Content = %q, want placeholder", deleted.Content)
	}

	// The row survives; history keeps its place.
	messages, err := testStore.ListMessages(conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("Expected 1 message after soft delete, got %d", len(messages))
	}

	if _, err := testStore.SoftDeleteMessage("no-such-message"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete unknown message error = %v, want ErrNotFound", err)
	}
}

func TestReactionReplacement(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	msg := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "react to me"}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	for _, emoji := range []string{"👍", "❤️"} {
		err := testStore.UpsertReaction(msg.ID, models.Reaction{
			Emoji:    emoji,
			UserID:   bob.ID,
			Username: bob.Username,
		})
		if err != nil {
			t.Fatalf("UpsertReaction(%s) failed: %v", emoji, err)
		}
	}

	reactions, err := testStore.ReactionsForMessage(msg.ID)
	if err != nil {
		t.Fatalf("ReactionsForMessage failed: %v", err)
	}
	if len(reactions) != 1 {
		t.Fatalf("Expected 1 reaction per user, got %d", len(reactions))
	}
	if reactions[0].Emoji != "❤️" {
		t.Errorf("Emoji = %q, want the replacement", reactions[0].Emoji)
	}

	if err := testStore.DeleteReaction(msg.ID, bob.ID); err != nil {
		t.Fatalf("DeleteReaction failed: %v", err)
	}
	if err := testStore.DeleteReaction(msg.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second DeleteReaction error = %v, want ErrNotFound", err)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	msg := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "ping"}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if err := testStore.BumpConversation(conv.ID, alice.ID); err != nil {
		t.Fatalf("BumpConversation failed: %v", err)
	}

	bobView, err := testStore.GetConversation(conv.ID, bob.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if bobView.UnreadCount != 1 {
		t.Errorf("Bob's unread count = %d, want 1", bobView.UnreadCount)
	}

	aliceView, err := testStore.GetConversation(conv.ID, alice.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if aliceView.UnreadCount != 0 {
		t.Errorf("Sender's unread count = %d, want 0", aliceView.UnreadCount)
	}

	if err := testStore.MarkConversationRead(conv.ID, bob.ID); err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}

	bobView, err = testStore.GetConversation(conv.ID, bob.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if bobView.UnreadCount != 0 {
		t.Errorf("Unread count after read = %d, want 0", bobView.UnreadCount)
	}

	read, err := testStore.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if read.Status != models.StatusRead {
		t.Errorf("Message status = %q, want %q", read.Status, models.StatusRead)
	}
}

func TestConversationFlags(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	pinned := true
	if err := testStore.UpdateConversationFlags(conv.ID, &pinned, nil, nil); err != nil {
		t.Fatalf("UpdateConversationFlags failed: %v", err)
	}

	updated, err := testStore.GetConversation(conv.ID, alice.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !updated.Pinned {
		t.Error("Expected pinned flag to be set")
	}
	if updated.Muted || updated.Archived {
		t.Error("Untouched flags should stay false")
	}

	if err := testStore.UpdateConversationFlags("no-such-conv", &pinned, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update unknown conversation error = %v, want ErrNotFound", err)
	}
}

func TestTodoOwnerScoping(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")

	todo := &models.Todo{Title: "write report", UserID: alice.ID, Tags: []string{"work"}}
	if err := testStore.InsertTodo(todo); err != nil {
		t.Fatalf("InsertTodo failed: %v", err)
	}

	if _, err := testStore.GetTodo(bob.ID, todo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cross-owner GetTodo error = %v, want ErrNotFound", err)
	}

	completed := true
	if _, err := testStore.PatchTodo(bob.ID, todo.ID, TodoPatch{Completed: &completed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cross-owner PatchTodo error = %v, want ErrNotFound", err)
	}

	// The failed patch must not have touched the row.
	unchanged, err := testStore.GetTodo(alice.ID, todo.ID)
	if err != nil {
		t.Fatalf("GetTodo failed: %v", err)
	}
	if unchanged.Completed {
		t.Error("Cross-owner patch modified the todo")
	}

	patched, err := testStore.PatchTodo(alice.ID, todo.ID, TodoPatch{Completed: &completed})
	if err != nil {
		t.Fatalf("PatchTodo failed: %v", err)
	}
	if !patched.Completed {
		t.Error("Expected completed flag to be set")
	}
	if patched.Title != "write report" {
		t.Errorf("Title = %q, partial patch must not clear it", patched.Title)
	}
	if len(patched.Tags) != 1 || patched.Tags[0] != "work" {
		t.Errorf("Tags = %v, partial patch must not clear them", patched.Tags)
	}

	if err := testStore.DeleteTodo(bob.ID, todo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cross-owner DeleteTodo error = %v, want ErrNotFound", err)
	}
	if err := testStore.DeleteTodo(alice.ID, todo.ID); err != nil {
		t.Fatalf("DeleteTodo failed: %v", err)
	}
}

func TestMeetingDefaults(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")

	meeting := &models.Meeting{
		Title:     "standup",
		Date:      time.Now().UTC().Add(24 * time.Hour),
		Attendees: []string{"alice", "bob"},
		CreatedBy: alice.ID,
	}
	if err := testStore.InsertMeeting(meeting); err != nil {
		t.Fatalf("InsertMeeting failed: %v", err)
	}

	saved, err := testStore.GetMeeting(meeting.ID)
	if err != nil {
		t.Fatalf("GetMeeting failed: %v", err)
	}
	if saved.Status != "scheduled" {
		t.Errorf("Status = %q, want scheduled", saved.Status)
	}
	if saved.Priority != "medium" {
		t.Errorf("Priority = %q, want medium", saved.Priority)
	}
	if len(saved.Attendees) != 2 {
		t.Errorf("Attendees = %v, want 2 entries", saved.Attendees)
	}

	missing := &models.Meeting{ID: "no-such-meeting", Title: "x", Date: time.Now()}
	if _, err := testStore.UpdateMeeting(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update unknown meeting error = %v, want ErrNotFound", err)
	}

	if err := testStore.DeleteMeeting(meeting.ID); err != nil {
		t.Fatalf("DeleteMeeting failed: %v", err)
	}
	if _, err := testStore.GetMeeting(meeting.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted meeting error = %v, want ErrNotFound", err)
	}
}

func TestAttachmentBinding(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")
	bob := mustUser(t, "bob", "bob@example.com")
	conv := mustDirectConversation(t, alice, bob)

	att := &models.Attachment{Kind: "image", URL: "/api/files/x.png", Name: "x.png", Size: 42}
	if err := testStore.SaveAttachment(att); err != nil {
		t.Fatalf("SaveAttachment failed: %v", err)
	}

	msg := &models.Message{ConversationID: conv.ID, SenderID: alice.ID, Content: "look"}
	if err := testStore.InsertMessage(msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	if err := testStore.BindAttachment(msg.ID, att.ID); err != nil {
		t.Fatalf("BindAttachment failed: %v", err)
	}

	// Already bound; binding again misses.
	if err := testStore.BindAttachment(msg.ID, att.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rebind error = %v, want ErrNotFound", err)
	}

	saved, err := testStore.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if len(saved.Attachments) != 1 || saved.Attachments[0].Name != "x.png" {
		t.Errorf("Attachments = %v, want the bound file", saved.Attachments)
	}
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	clearTestData()

	alice := mustUser(t, "alice", "alice@example.com")

	sub := PushSubscription{
		UserID:    alice.ID,
		Endpoint:  "https://push.example.com/abc",
		KeyP256dh: "key",
		KeyAuth:   "auth",
	}
	if err := testStore.SavePushSubscription(sub); err != nil {
		t.Fatalf("SavePushSubscription failed: %v", err)
	}

	// Re-subscribing the same endpoint replaces, never duplicates.
	if err := testStore.SavePushSubscription(sub); err != nil {
		t.Fatalf("SavePushSubscription upsert failed: %v", err)
	}

	subs, err := testStore.SubscriptionsForUser(alice.ID)
	if err != nil {
		t.Fatalf("SubscriptionsForUser failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Expected 1 subscription, got %d", len(subs))
	}

	if err := testStore.DeletePushSubscription(alice.ID, sub.Endpoint); err != nil {
		t.Fatalf("DeletePushSubscription failed: %v", err)
	}
	subs, _ = testStore.SubscriptionsForUser(alice.ID)
	if len(subs) != 0 {
		t.Errorf("Expected 0 subscriptions after delete, got %d", len(subs))
	}
}
