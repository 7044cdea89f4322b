package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/models"
	"chatmatch/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) GoOnline(ctx context.Context, u models.User) error {
	return m.Called(u.ID).Error(0)
}

func (m *mockPresence) LogoutOrDisconnect(ctx context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func newService(t *testing.T) (*auth.Service, *storage.MemoryUsers, *mockPresence) {
	t.Helper()
	users := storage.NewMemoryUsers()
	presence := new(mockPresence)
	return auth.NewService(users, presence, auth.NewTokens("test-secret", time.Hour)), users, presence
}

func validInput(username string) auth.RegisterInput {
	return auth.RegisterInput{
		Username: username,
		Password: "secret1",
		ProfileInput: auth.ProfileInput{
			Gender:     "female",
			Preference: "Bisexual",
			Interests:  []string{"music", "Art", "music"},
		},
	}
}

func TestRegister(t *testing.T) {
	svc, users, _ := newService(t)

	u, err := svc.Register(context.Background(), validInput("  alice "))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, models.GenderFemale, u.Gender)
	assert.Equal(t, models.PreferenceBisexual, u.Preference)
	assert.Equal(t, []string{"Art", "Music"}, []string(u.Interests))
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))

	stored, err := users.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Register(context.Background(), validInput("bob"))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validInput("bob"))
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newService(t)

	tests := []struct {
		name   string
		modify func(*auth.RegisterInput)
	}{
		{"blank username", func(in *auth.RegisterInput) { in.Username = "   " }},
		{"long username", func(in *auth.RegisterInput) { in.Username = strings.Repeat("x", 33) }},
		{"reserved prefix", func(in *auth.RegisterInput) { in.Username = "tg:42" }},
		{"short password", func(in *auth.RegisterInput) { in.Password = "12345" }},
		{"bad gender", func(in *auth.RegisterInput) { in.Gender = "robot" }},
		{"bad preference", func(in *auth.RegisterInput) { in.Preference = "pan" }},
		{"unknown interest", func(in *auth.RegisterInput) { in.Interests = []string{"Knitting"} }},
		{"no interests", func(in *auth.RegisterInput) { in.Interests = []string{" "} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("carol")
			tt.modify(&in)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, auth.ErrInvalidProfile)
		})
	}
}

func TestAuthenticateAndGoOnline(t *testing.T) {
	svc, _, presence := newService(t)
	u, err := svc.Register(context.Background(), validInput("dave"))
	require.NoError(t, err)

	presence.On("GoOnline", u.ID).Return(nil).Once()

	userID, token, err := svc.AuthenticateAndGoOnline(context.Background(), "dave", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)

	fromToken, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, fromToken)
	presence.AssertExpectations(t)
}

func TestAuthenticateAndGoOnline_BadCredentials(t *testing.T) {
	svc, _, presence := newService(t)
	_, err := svc.Register(context.Background(), validInput("erin"))
	require.NoError(t, err)

	_, _, err = svc.AuthenticateAndGoOnline(context.Background(), "erin", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = svc.AuthenticateAndGoOnline(context.Background(), "nobody", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	presence.AssertNotCalled(t, "GoOnline", mock.Anything)
}

func TestLogout(t *testing.T) {
	svc, _, presence := newService(t)
	presence.On("LogoutOrDisconnect", "u1").Return(nil).Once()

	require.NoError(t, svc.Logout(context.Background(), "u1"))
	presence.AssertExpectations(t)
}

func TestSaveTelegramProfile(t *testing.T) {
	svc, _, presence := newService(t)
	ctx := context.Background()
	presence.On("GoOnline", mock.Anything).Return(nil)

	in := auth.ProfileInput{Gender: "male", Preference: "gay", Interests: []string{"gaming"}}
	u, err := svc.SaveTelegramProfile(ctx, 42, in)
	require.NoError(t, err)
	assert.Equal(t, "tg:42", u.Username)
	require.NotNil(t, u.TelegramID)
	assert.Equal(t, int64(42), *u.TelegramID)

	in.Interests = []string{"books", "food"}
	again, err := svc.SaveTelegramProfile(ctx, 42, in)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, []string{"Books", "Food"}, []string(again.Interests))

	found, err := svc.TelegramUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = svc.TelegramUser(ctx, 43)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
