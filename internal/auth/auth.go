package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/store"
)

var (
	// ErrDuplicateUser means the email is already registered.
	ErrDuplicateUser = errors.New("email already registered")
	// ErrInvalidCredentials means the email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrValidation means the registration input was malformed.
	ErrValidation = errors.New("validation failed")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Service struct {
	store     *store.Store
	jwtSecret string
	tokenTTL  time.Duration
}

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func New(st *store.Store, jwtSecret string) *Service {
	return NewWithTokenTTL(st, jwtSecret, 24*time.Hour)
}

func NewWithTokenTTL(st *store.Store, jwtSecret string, tokenTTL time.Duration) *Service {
	// Tokens always expire; an unbounded credential is not an option.
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	return &Service{
		store:     st,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Register creates an account. The password is stored only as a bcrypt
// hash (per-call salt); the plain form never leaves this function.
func (s *Service) Register(username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if len(username) < 3 || len(username) > 32 {
		return nil, fmt.Errorf("%w: username must be between 3 and 32 characters", ErrValidation)
	}
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username can only contain letters, numbers, and underscores", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.CreateUser(username, email, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	return user, nil
}

// Login verifies the credentials and returns a signed token. A wrong
// password and an unknown email are indistinguishable to the caller.
func (s *Service) Login(email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, hash, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	return user, token, nil
}

func (s *Service) GenerateToken(userID, username string) (string, error) {
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// UserExists reports whether the token's subject still resolves.
func (s *Service) UserExists(userID string) (bool, error) {
	return s.store.UserExists(userID)
}
