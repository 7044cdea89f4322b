package telegram

import (
	"log"
	"strings"
	"sync"

	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/localization"
	"chatmatch/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI used to talk to users.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client implements chathub.Client for a Telegram chat. Frames are rendered
// as plain text messages; the user's own actions are not echoed back.
type Client struct {
	UserID    string
	ChatID    int64
	Lang      string
	Send      chan models.Frame
	Bot       Sender
	Localizer *localization.Localizer

	closeOnce sync.Once
}

func NewClient(userID string, chatID int64, lang string, bot Sender, l *localization.Localizer) *Client {
	return &Client{
		UserID:    userID,
		ChatID:    chatID,
		Lang:      lang,
		Send:      make(chan models.Frame, config.ClientSendBuffer),
		Bot:       bot,
		Localizer: l,
	}
}

func (c *Client) GetUserID() string                   { return c.UserID }
func (c *Client) GetSendChannel() chan<- models.Frame { return c.Send }

// Run starts the write pump. Incoming updates are handled by BotService.
func (c *Client) Run() {
	go c.writePump()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *Client) writePump() {
	for frame := range c.Send {
		text := c.render(frame)
		if text == "" {
			continue
		}
		if _, err := c.Bot.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
			log.Printf("ERROR: Failed to send Telegram message to %d: %v", c.ChatID, err)
		}
	}
	log.Printf("INFO: writePump stopped for Telegram client %d", c.ChatID)
}

// render returns the text for a frame, or "" when nothing should be sent.
func (c *Client) render(f models.Frame) string {
	switch f.Type {
	case models.FrameMatchFound:
		if f.Partner == nil {
			return ""
		}
		common := strings.Join(f.Partner.CommonInterests, ", ")
		if common == "" {
			common = c.Localizer.GetString(c.Lang, "no_common_interests")
		}
		return c.Localizer.Format(c.Lang, "match_found", f.Partner.Gender, f.Partner.Preference, common)

	case models.FrameMessage:
		if f.Self || f.Message == nil {
			return ""
		}
		return f.Message.Body

	case models.FrameSessionEnded:
		if f.Self {
			return c.Localizer.GetString(c.Lang, "chat_ended_self")
		}
		return c.Localizer.GetString(c.Lang, "chat_ended_partner")

	case models.FrameError:
		return c.Localizer.GetString(c.Lang, errorKey(f.Error))
	}
	log.Printf("WARNING: Unhandled frame type %q for Telegram client %d", f.Type, c.ChatID)
	return ""
}

// errorKey maps an engine error code to a catalog key.
func errorKey(code string) string {
	switch code {
	case "no_match":
		return "searching_no_match"
	case "already_in_session":
		return "already_in_chat"
	case "session_not_active", "not_a_participant", "session_not_found":
		return "not_in_chat"
	case "message_too_long":
		return "message_too_long"
	case "unknown_command":
		return "unknown_command"
	}
	return "internal_error"
}
