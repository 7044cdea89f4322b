package models_test

import (
	"chatmatch/backend/internal/models"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{
		Username:   "anon",
		Gender:     models.GenderFemale,
		Preference: models.PreferenceStraight,
		Interests:  pq.StringArray{"Music", "Travel"},
	}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	err := user.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Username: "kept"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID)
}

// TestUserStructTags guards the reference schema against accidental tag removal.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	nameField, found := userType.FieldByName("Username")
	assert.True(t, found)
	assert.Contains(t, nameField.Tag.Get("gorm"), "uniqueIndex")

	hashField, found := userType.FieldByName("PasswordHash")
	assert.True(t, found)
	assert.Equal(t, "-", hashField.Tag.Get("json"), "password hash must never be serialized")

	interestsField, found := userType.FieldByName("Interests")
	assert.True(t, found)
	assert.Contains(t, interestsField.Tag.Get("gorm"), "type:text[]")

	onlineField, found := userType.FieldByName("Online")
	assert.True(t, found)
	assert.Equal(t, "-", onlineField.Tag.Get("gorm"), "online flag is not persisted")
}

func TestParseInterests(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr error
	}{
		{name: "canonical spelling", in: []string{"music", " TRAVEL "}, want: []string{"Music", "Travel"}},
		{name: "duplicates dropped", in: []string{"Books", "books", "Art"}, want: []string{"Art", "Books"}},
		{name: "blanks ignored", in: []string{"", "  ", "Food"}, want: []string{"Food"}},
		{name: "empty", in: nil, want: []string{}},
		{name: "unknown tag", in: []string{"Music", "Knitting"}, wantErr: models.ErrUnknownInterest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseInterests(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGenderAndPreference(t *testing.T) {
	g, err := models.ParseGender("female")
	require.NoError(t, err)
	assert.Equal(t, models.GenderFemale, g)

	_, err = models.ParseGender("robot")
	assert.ErrorIs(t, err, models.ErrUnknownGender)

	p, err := models.ParsePreference(" bisexual")
	require.NoError(t, err)
	assert.Equal(t, models.PreferenceBisexual, p)

	_, err = models.ParsePreference("any")
	assert.ErrorIs(t, err, models.ErrUnknownPreference)
}

func TestChatSessionParticipants(t *testing.T) {
	s := models.ChatSession{SessionID: "s1", User1ID: "a", User2ID: "b", StartedAt: time.Now()}

	assert.True(t, s.IsActive())
	assert.True(t, s.HasParticipant("a"))
	assert.True(t, s.HasParticipant("b"))
	assert.False(t, s.HasParticipant("c"))
	assert.False(t, s.HasParticipant(""))
	assert.Equal(t, "b", s.PartnerOf("a"))
	assert.Equal(t, "a", s.PartnerOf("b"))
	assert.Empty(t, s.PartnerOf("c"))

	ended := time.Now()
	s.EndedAt = &ended
	assert.False(t, s.IsActive())
}
