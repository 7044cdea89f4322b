// Package telegram lets Telegram users take part in the anonymous chat.
// Commands and text are turned into engine calls; replies from the engine
// reach the user through a chathub.Client.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/localization"
	"chatmatch/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotService receives Telegram updates and routes them to the engine.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Bot       Sender
	Engine    *chathub.Engine
	Hub       *chathub.Hub
	Auth      *auth.Service
	Localizer *localization.Localizer

	// langs remembers the language of each chat for frames pushed later.
	langs sync.Map // chatID -> string
}

// NewBotService connects to the Bot API.
func NewBotService(token string, engine *chathub.Engine, hub *chathub.Hub, authSvc *auth.Service, l *localization.Localizer) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("INFO: Authorized on account %s", bot.Self.UserName)

	s := NewBotServiceWithSender(bot, engine, hub, authSvc, l)
	s.BotAPI = bot
	return s, nil
}

// NewBotServiceWithSender builds the service around any Sender. It installs
// itself as the hub's client restorer.
func NewBotServiceWithSender(bot Sender, engine *chathub.Engine, hub *chathub.Hub, authSvc *auth.Service, l *localization.Localizer) *BotService {
	s := &BotService{
		Bot:       bot,
		Engine:    engine,
		Hub:       hub,
		Auth:      authSvc,
		Localizer: l,
	}
	hub.SetClientRestorer(s.restoreClient)
	return s
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				s.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// restoreClient creates the push client of a Telegram user. Hub calls it
// for users without a live client.
func (s *BotService) restoreClient(userID string) (chathub.Client, error) {
	u, err := s.Auth.Profile(context.Background(), userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, chathub.ErrNoClient
	}
	if err != nil {
		return nil, err
	}
	if u.TelegramID == nil {
		return nil, chathub.ErrNoClient
	}
	return NewClient(u.ID, *u.TelegramID, s.lang(*u.TelegramID), s.Bot, s.Localizer), nil
}

// HandleMessage processes one incoming message.
func (s *BotService) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.From != nil && msg.From.LanguageCode != "" {
		s.langs.Store(chatID, msg.From.LanguageCode)
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			s.handleStart(chatID)
		case "profile":
			s.handleProfile(ctx, chatID, msg.CommandArguments())
		case "search":
			s.handleSearch(ctx, chatID)
		case "stop":
			s.handleStop(ctx, chatID)
		case "me":
			s.handleMe(ctx, chatID)
		case "logout":
			s.handleLogout(ctx, chatID)
		default:
			s.reply(chatID, "unknown_command")
		}
		return
	}

	if msg.Text == "" {
		return
	}
	s.handleText(ctx, chatID, msg.Text)
}

func (s *BotService) handleStart(chatID int64) {
	names := make([]string, 0, len(models.Interests))
	for _, i := range models.Interests {
		names = append(names, string(i))
	}
	s.reply(chatID, "welcome", strings.Join(names, ", "))
}

// handleProfile parses "/profile <gender> <preference> <interest,...>".
// Interests may also be separated by spaces.
func (s *BotService) handleProfile(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		s.reply(chatID, "profile_usage")
		return
	}
	in := auth.ProfileInput{
		Gender:     fields[0],
		Preference: fields[1],
		Interests:  strings.FieldsFunc(strings.Join(fields[2:], ","), func(r rune) bool { return r == ',' }),
	}

	if _, err := s.Auth.SaveTelegramProfile(ctx, chatID, in); err != nil {
		if errors.Is(err, auth.ErrInvalidProfile) {
			s.reply(chatID, "profile_invalid", err.Error())
			return
		}
		log.Printf("ERROR: Failed to save profile for Telegram chat %d: %v", chatID, err)
		s.reply(chatID, "internal_error")
		return
	}
	s.reply(chatID, "profile_saved")
}

func (s *BotService) handleSearch(ctx context.Context, chatID int64) {
	u, ok := s.onlineUser(ctx, chatID)
	if !ok {
		return
	}
	// The match_found frame arrives through the hub.
	_, err := s.Engine.RequestMatch(ctx, u.ID)
	switch {
	case err == nil:
	case errors.Is(err, chathub.ErrNoMatch):
		s.reply(chatID, "searching_no_match")
	case errors.Is(err, chathub.ErrAlreadyInSession):
		s.reply(chatID, "already_in_chat")
	default:
		log.Printf("ERROR: Match request of %s failed: %v", u.ID, err)
		s.reply(chatID, "internal_error")
	}
}

func (s *BotService) handleStop(ctx context.Context, chatID int64) {
	u, ok := s.onlineUser(ctx, chatID)
	if !ok {
		return
	}
	session, active := s.Engine.Sessions.GetActiveSession(u.ID)
	if !active {
		s.reply(chatID, "not_in_chat")
		return
	}
	if _, err := s.Engine.EndChat(ctx, session.SessionID, u.ID); err != nil {
		log.Printf("ERROR: Failed to end session %s: %v", session.SessionID, err)
		s.reply(chatID, "internal_error")
	}
}

func (s *BotService) handleMe(ctx context.Context, chatID int64) {
	u, ok := s.onlineUser(ctx, chatID)
	if !ok {
		return
	}
	s.reply(chatID, "me", u.Gender, u.Preference, strings.Join(u.Interests, ", "))
	if _, active := s.Engine.Sessions.GetActiveSession(u.ID); active {
		s.reply(chatID, "me_in_chat")
	}
}

// handleLogout takes the user offline and ends their chat. They stay offline
// until their next command.
func (s *BotService) handleLogout(ctx context.Context, chatID int64) {
	u, err := s.Auth.TelegramUser(ctx, chatID)
	if errors.Is(err, auth.ErrUserNotFound) {
		s.reply(chatID, "profile_required")
		return
	}
	if err != nil {
		log.Printf("ERROR: Failed to load user of Telegram chat %d: %v", chatID, err)
		s.reply(chatID, "internal_error")
		return
	}
	if err := s.Auth.Logout(ctx, u.ID); err != nil && !errors.Is(err, chathub.ErrUnknownUser) {
		log.Printf("ERROR: Failed to log out %s: %v", u.ID, err)
		s.reply(chatID, "internal_error")
		return
	}
	s.reply(chatID, "logged_out")
}

func (s *BotService) handleText(ctx context.Context, chatID int64, text string) {
	u, ok := s.onlineUser(ctx, chatID)
	if !ok {
		return
	}
	session, active := s.Engine.Sessions.GetActiveSession(u.ID)
	if !active {
		s.reply(chatID, "not_in_chat")
		return
	}

	_, err := s.Engine.SendChatMessage(ctx, session.SessionID, u.ID, text)
	switch {
	case err == nil:
	case errors.Is(err, chathub.ErrMessageTooLong):
		s.reply(chatID, "message_too_long")
	case errors.Is(err, chathub.ErrSessionNotActive):
		s.reply(chatID, "not_in_chat")
	case errors.Is(err, chathub.ErrEmptyMessage):
	default:
		log.Printf("ERROR: Failed to relay message of %s: %v", u.ID, err)
		s.reply(chatID, "internal_error")
	}
}

// onlineUser loads the chat's user and makes sure the directory has them
// online; a Telegram user is online whenever they interact with the bot.
func (s *BotService) onlineUser(ctx context.Context, chatID int64) (*models.User, bool) {
	u, err := s.Auth.TelegramUser(ctx, chatID)
	if errors.Is(err, auth.ErrUserNotFound) {
		s.reply(chatID, "profile_required")
		return nil, false
	}
	if err != nil {
		log.Printf("ERROR: Failed to load user of Telegram chat %d: %v", chatID, err)
		s.reply(chatID, "internal_error")
		return nil, false
	}
	if !s.Engine.Directory.IsOnline(u.ID) {
		if err := s.Engine.GoOnline(ctx, *u); err != nil {
			log.Printf("ERROR: Failed to bring %s online: %v", u.ID, err)
			s.reply(chatID, "internal_error")
			return nil, false
		}
	}
	return u, true
}

func (s *BotService) lang(chatID int64) string {
	if v, ok := s.langs.Load(chatID); ok {
		return v.(string)
	}
	return "en"
}

func (s *BotService) reply(chatID int64, key string, args ...any) {
	text := s.Localizer.GetString(s.lang(chatID), key)
	if len(args) > 0 {
		text = fmt.Sprintf(text, args...)
	}
	if _, err := s.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("ERROR: Failed to reply to Telegram chat %d: %v", chatID, err)
	}
}
