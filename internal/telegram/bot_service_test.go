package telegram_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/localization"
	"chatmatch/backend/internal/storage"
	"chatmatch/backend/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records every text sent to a chat.
type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent[m.ChatID] = append(f.sent[m.ChatID], m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

func (f *fakeSender) last(chatID int64) string {
	t := f.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

// received reports whether any text sent to the chat contains sub.
func (f *fakeSender) received(chatID int64, sub string) func() bool {
	return func() bool {
		for _, t := range f.texts(chatID) {
			if strings.Contains(t, sub) {
				return true
			}
		}
		return false
	}
}

func newBot(t *testing.T) (*telegram.BotService, *fakeSender, *chathub.Engine) {
	t.Helper()
	engine := chathub.NewEngine()
	hub := chathub.NewHub(engine)
	engine.AddSink(hub)

	l, err := localization.Default()
	require.NoError(t, err)
	authSvc := auth.NewService(storage.NewMemoryUsers(), engine, auth.NewTokens("k", time.Hour))

	sender := &fakeSender{sent: make(map[int64][]string)}
	bot := telegram.NewBotServiceWithSender(sender, engine, hub, authSvc, l)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return bot, sender, engine
}

func message(chatID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: chatID, LanguageCode: "en"},
		Chat: tgbotapi.Chat{ID: chatID},
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func TestBot_FullConversation(t *testing.T) {
	bot, sender, engine := newBot(t)
	ctx := context.Background()

	bot.HandleMessage(ctx, message(1, "/profile Male Straight Music, Travel"))
	assert.Equal(t, "Profile saved. Send /search to find a partner.", sender.last(1))
	bot.HandleMessage(ctx, message(2, "/profile female straight books,music"))
	assert.Equal(t, "Profile saved. Send /search to find a partner.", sender.last(2))

	bot.HandleMessage(ctx, message(1, "/search"))
	assert.Eventually(t, sender.received(1, "Partner found!\nGender: Female"), time.Second, 10*time.Millisecond)
	assert.Eventually(t, sender.received(2, "Common interests: Music"), time.Second, 10*time.Millisecond)

	bot.HandleMessage(ctx, message(1, "hello there"))
	assert.Eventually(t, sender.received(2, "hello there"), time.Second, 10*time.Millisecond)

	bot.HandleMessage(ctx, message(2, "/stop"))
	assert.Eventually(t, sender.received(2, "You left the chat."), time.Second, 10*time.Millisecond)
	assert.Eventually(t, sender.received(1, "Your partner left the chat."), time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, engine.Sessions.ActiveCount())
	assert.False(t, sender.received(1, "hello there")(), "own messages are not echoed")
}

func TestBot_Replies(t *testing.T) {
	bot, sender, _ := newBot(t)
	ctx := context.Background()

	bot.HandleMessage(ctx, message(5, "/search"))
	assert.Equal(t, "You have no profile yet. Send /start to see how to create one.", sender.last(5))

	bot.HandleMessage(ctx, message(5, "/profile Male"))
	assert.Equal(t, "Usage: /profile <gender> <preference> <interest,interest,...>", sender.last(5))

	bot.HandleMessage(ctx, message(5, "/profile Male Straight Knitting"))
	assert.Contains(t, sender.last(5), "That profile is not valid")

	bot.HandleMessage(ctx, message(5, "/dance"))
	assert.Equal(t, "Unknown command.", sender.last(5))

	bot.HandleMessage(ctx, message(5, "/profile Male Gay Art"))
	bot.HandleMessage(ctx, message(5, "/search"))
	assert.Equal(t, "Nobody suitable is online right now. Try /search again in a little while.", sender.last(5))

	bot.HandleMessage(ctx, message(5, "anyone?"))
	assert.Equal(t, "You are not in a chat. Send /search to find a partner.", sender.last(5))

	bot.HandleMessage(ctx, message(5, "/me"))
	assert.Equal(t, "Gender: Male\nPreference: Gay\nInterests: Art", sender.last(5))

	bot.HandleMessage(ctx, message(5, "/start"))
	assert.Contains(t, sender.last(5), "Music, Sports, Movies")
}

func TestBot_Localized(t *testing.T) {
	bot, sender, _ := newBot(t)
	msg := message(9, "/dance")
	msg.From.LanguageCode = "uk"

	bot.HandleMessage(context.Background(), msg)
	assert.Equal(t, "Невідома команда.", sender.last(9))
}

func TestBot_Logout(t *testing.T) {
	bot, sender, engine := newBot(t)
	ctx := context.Background()

	bot.HandleMessage(ctx, message(1, "/profile Male Straight Music"))
	bot.HandleMessage(ctx, message(2, "/profile Female Straight Music"))
	bot.HandleMessage(ctx, message(1, "/search"))
	require.Eventually(t, sender.received(2, "Partner found!"), time.Second, 10*time.Millisecond)

	bot.HandleMessage(ctx, message(2, "/logout"))
	assert.Eventually(t, sender.received(2, "You are offline now"), time.Second, 10*time.Millisecond)
	assert.Eventually(t, sender.received(1, "Your partner left the chat."), time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, engine.Sessions.ActiveCount())

	u2, err := bot.Auth.TelegramUser(ctx, 2)
	require.NoError(t, err)
	assert.False(t, engine.Directory.IsOnline(u2.ID))

	// Offline users are not offered as partners.
	bot.HandleMessage(ctx, message(1, "/search"))
	assert.Equal(t, "Nobody suitable is online right now. Try /search again in a little while.", sender.last(1))

	// Coming back is one command away.
	bot.HandleMessage(ctx, message(2, "/search"))
	assert.Eventually(t, func() bool { return engine.Sessions.ActiveCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBot_LogoutWithoutProfile(t *testing.T) {
	bot, sender, _ := newBot(t)
	bot.HandleMessage(context.Background(), message(7, "/logout"))
	assert.Equal(t, "You have no profile yet. Send /start to see how to create one.", sender.last(7))
}
