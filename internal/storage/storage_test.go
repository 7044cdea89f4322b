package storage_test

import (
	"context"
	"testing"
	"time"

	"chatmatch/backend/internal/models"
	"chatmatch/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCodec(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := models.ChatEvent{
		Type:    models.EventMessagePosted,
		UserID:  "a",
		Message: &models.ChatMessage{ID: 7, SessionID: "s1", SenderID: "a", Body: "hi there", CreatedAt: at},
		At:      at,
	}

	payload, err := storage.EncodeEvent(ev)
	require.NoError(t, err)

	got, err := storage.DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeEvent_Garbage(t *testing.T) {
	_, err := storage.DecodeEvent([]byte("{not snappy"))
	assert.Error(t, err)
}

func TestPublish_PresenceWithoutRedis(t *testing.T) {
	svc := storage.NewStorageService(nil, nil)
	ctx := context.Background()

	assert.NoError(t, svc.Publish(ctx, models.ChatEvent{Type: models.EventUserOnline, UserID: "a"}))
	assert.NoError(t, svc.Publish(ctx, models.ChatEvent{Type: models.EventMatchMiss, UserID: "a"}))

	ids, err := svc.OnlineUsers(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ids)

	_, err = svc.SubscribeEvents(ctx)
	assert.Error(t, err)
}

func TestPublish_ArchiveSkippedWithoutDB(t *testing.T) {
	svc := storage.NewStorageService(nil, nil)
	s := &models.ChatSession{SessionID: "s1", User1ID: "a", User2ID: "b", StartedAt: time.Now()}

	assert.NoError(t, svc.Publish(context.Background(), models.ChatEvent{Type: models.EventSessionOpened, Session: s}))
	assert.NoError(t, svc.Publish(context.Background(), models.ChatEvent{
		Type:    models.EventMessagePosted,
		Session: s,
		Message: &models.ChatMessage{ID: 1, SessionID: "s1", SenderID: "a", Body: "hi"},
	}))
}
