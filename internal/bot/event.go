package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Event is one incoming chat message, independent of the transport.
type Event struct {
	ChatID         int64
	ChatTitle      string
	ChatType       string
	ChatUsername   string
	SenderID       int64
	SenderUsername string
	SenderName     string
	SenderIsBot    bool
	// Outgoing is set when the account owner wrote the message.
	Outgoing  bool
	MessageID int
	Text      string
	Date      time.Time
}

// SelfChat reports whether the event comes from the owner's private chat
// with the bot. On the Bot API a private chat id equals the user id.
func (e Event) SelfChat() bool {
	return e.ChatType == "private" && e.SenderID != 0 && e.ChatID == e.SenderID
}

// eventFromUpdate converts a message or channel post. Other update kinds are
// skipped.
func eventFromUpdate(u tgbotapi.Update, ownerID int64) (Event, bool) {
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	ev := Event{
		ChatID:       msg.Chat.ID,
		ChatTitle:    chatName(msg.Chat),
		ChatType:     msg.Chat.Type,
		ChatUsername: msg.Chat.UserName,
		MessageID:    msg.MessageID,
		Text:         text,
	}
	if msg.Date != 0 {
		ev.Date = msg.Time()
	}

	switch {
	case msg.From != nil:
		ev.SenderID = msg.From.ID
		ev.SenderUsername = msg.From.UserName
		ev.SenderName = fullName(msg.From.FirstName, msg.From.LastName)
		ev.SenderIsBot = msg.From.IsBot
	case msg.SenderChat != nil:
		ev.SenderID = msg.SenderChat.ID
		ev.SenderUsername = msg.SenderChat.UserName
		ev.SenderName = chatName(msg.SenderChat)
	}
	ev.Outgoing = ownerID != 0 && ev.SenderID == ownerID

	return ev, true
}

func chatName(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	if name := fullName(c.FirstName, c.LastName); name != "" {
		return name
	}
	if c.UserName != "" {
		return "@" + c.UserName
	}
	return strconv.FormatInt(c.ID, 10)
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// messageLink builds a t.me link for supergroup and channel messages. Other
// chats have no linkable messages.
func messageLink(ev Event) string {
	if ev.ChatType != "supergroup" && ev.ChatType != "channel" {
		return ""
	}
	if ev.ChatUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", ev.ChatUsername, ev.MessageID)
	}
	internal, ok := strings.CutPrefix(strconv.FormatInt(ev.ChatID, 10), "-100")
	if !ok || internal == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, ev.MessageID)
}
