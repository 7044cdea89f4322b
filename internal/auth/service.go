// Package auth registers users, checks their credentials and brings them
// online in the chat engine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrDuplicateIdentity is returned when the username (or Telegram account) is taken.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidProfile wraps every registration validation failure.
	ErrInvalidProfile = errors.New("invalid profile")
)

const maxUsernameLength = 32

// UserRepository is the durable store of registered users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// Presence is the part of the chat engine that tracks who is online.
type Presence interface {
	GoOnline(ctx context.Context, u models.User) error
	LogoutOrDisconnect(ctx context.Context, userID string) error
}

// ProfileInput is the raw, unvalidated profile of a user.
type ProfileInput struct {
	Gender     string   `json:"gender" binding:"required"`
	Preference string   `json:"preference" binding:"required"`
	Interests  []string `json:"interests" binding:"required"`
}

// RegisterInput is what a new user submits.
type RegisterInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	ProfileInput
}

// Service handles registration, login and logout.
type Service struct {
	users    UserRepository
	presence Presence
	tokens   *Tokens
}

// NewService creates a new authentication service.
func NewService(users UserRepository, presence Presence, tokens *Tokens) *Service {
	return &Service{users: users, presence: presence, tokens: tokens}
}

// Register validates the input and stores a new user. The user is not
// brought online.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be 1..%d characters", ErrInvalidProfile, maxUsernameLength)
	}
	if strings.HasPrefix(username, telegramPrefix) {
		return nil, fmt.Errorf("%w: username prefix %q is reserved", ErrInvalidProfile, telegramPrefix)
	}
	if utf8.RuneCountInString(in.Password) < config.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidProfile, config.MinPasswordLength)
	}

	u, err := buildProfile(in.ProfileInput)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.Username = username
	u.PasswordHash = string(hash)

	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Printf("INFO: registered user %s", u.ID)
	return u, nil
}

// AuthenticateAndGoOnline checks the credentials, marks the user online and
// returns a bearer token.
func (s *Service) AuthenticateAndGoOnline(ctx context.Context, username, password string) (string, string, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil || u == nil {
		return "", "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", "", err
	}
	if err := s.presence.GoOnline(ctx, *u); err != nil {
		return "", "", fmt.Errorf("go online: %w", err)
	}
	return u.ID, token, nil
}

// Authenticate validates a bearer token.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Parse(token)
}

// Resume brings a user with a still valid token back online, e.g. after the
// server restarted and lost its in-memory directory.
func (s *Service) Resume(ctx context.Context, userID string) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.presence.GoOnline(ctx, *u)
}

// Logout takes the user offline and ends their active chat.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.presence.LogoutOrDisconnect(ctx, userID)
}

// Profile returns the stored user.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

const telegramPrefix = "tg:"

// TelegramUser returns the user registered for the Telegram chat.
func (s *Service) TelegramUser(ctx context.Context, chatID int64) (*models.User, error) {
	return s.users.GetUserByTelegramID(ctx, chatID)
}

// SaveTelegramProfile creates or updates the user bound to a Telegram chat and
// brings them online. Telegram users never log in with a password; they get a
// random one.
func (s *Service) SaveTelegramProfile(ctx context.Context, chatID int64, in ProfileInput) (*models.User, error) {
	u, err := buildProfile(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByTelegramID(ctx, chatID)
	switch {
	case err == nil:
		existing.Gender = u.Gender
		existing.Preference = u.Preference
		existing.Interests = u.Interests
		if err := s.users.UpdateUser(ctx, existing); err != nil {
			return nil, err
		}
		u = existing

	case errors.Is(err, ErrUserNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		id := chatID
		u.Username = telegramPrefix + strconv.FormatInt(chatID, 10)
		u.PasswordHash = string(hash)
		u.TelegramID = &id
		if err := s.users.CreateUser(ctx, u); err != nil {
			return nil, err
		}
		log.Printf("INFO: registered telegram user %s", u.ID)

	default:
		return nil, err
	}

	if err := s.presence.GoOnline(ctx, *u); err != nil {
		return nil, fmt.Errorf("go online: %w", err)
	}
	return u, nil
}

func buildProfile(in ProfileInput) (*models.User, error) {
	g, err := models.ParseGender(in.Gender)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	p, err := models.ParsePreference(in.Preference)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	interests, err := models.ParseInterests(in.Interests)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if len(interests) == 0 || len(interests) > config.MaxInterests {
		return nil, fmt.Errorf("%w: pick 1..%d interests", ErrInvalidProfile, config.MaxInterests)
	}
	return &models.User{Gender: g, Preference: p, Interests: pq.StringArray(interests)}, nil
}
