package auth

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/teamboard/teamboard/internal/store"
)

var (
	testStore *store.Store
	testSvc   *Service
)

func TestMain(m *testing.M) {
	var err error
	testStore, err = store.Open(":memory:")
	if err != nil {
		panic(err)
	}

	testSvc = New(testStore, "test-jwt-secret")

	code := m.Run()

	testStore.Close()
	os.Exit(code)
}

func clearUsers() {
	testStore.Conn().Exec("DELETE FROM users")
}

func TestRegisterValidation(t *testing.T) {
	clearUsers()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short username", "ab", "a@example.com", "password123"},
		{"invalid username characters", "bad user!", "b@example.com", "password123"},
		{"invalid email", "gooduser", "not-an-email", "password123"},
		{"short password", "gooduser", "c@example.com", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testSvc.Register(tt.username, tt.email, tt.password)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	clearUsers()

	if _, err := testSvc.Register("alice", "alice@example.com", "password123"); err != nil {
		t.Fatalf("First Register failed: %v", err)
	}

	// Email matching is case-insensitive.
	_, err := testSvc.Register("alice2", "Alice@Example.com", "password123")
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("Duplicate Register error = %v, want ErrDuplicateUser", err)
	}
}

func TestLogin(t *testing.T) {
	clearUsers()

	registered, err := testSvc.Register("bob", "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		user, token, err := testSvc.Login("bob@example.com", "password123")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user.ID != registered.ID {
			t.Errorf("User ID = %s, want %s", user.ID, registered.ID)
		}
		if token == "" {
			t.Error("Expected a token")
		}

		claims, err := testSvc.ValidateToken(token)
		if err != nil {
			t.Fatalf("ValidateToken failed: %v", err)
		}
		if claims.UserID != registered.ID {
			t.Errorf("Claims user = %s, want %s", claims.UserID, registered.ID)
		}
		if claims.Username != "bob" {
			t.Errorf("Claims username = %q, want bob", claims.Username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := testSvc.Login("bob@example.com", "wrongpassword")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := testSvc.Login("nobody@example.com", "password123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login error = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestTokenExpiry(t *testing.T) {
	clearUsers()

	shortLived := NewWithTokenTTL(testStore, "test-jwt-secret", time.Millisecond)

	token, err := shortLived.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := shortLived.ValidateToken(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestTokenAlwaysExpires(t *testing.T) {
	token, err := testSvc.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := testSvc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("Token carries no expiry")
	}
	if !claims.ExpiresAt.After(time.Now()) {
		t.Error("Fresh token already expired")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	other := New(testStore, "another-secret")

	token, err := other.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := testSvc.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	if _, err := testSvc.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected garbage token to be rejected")
	}
}
