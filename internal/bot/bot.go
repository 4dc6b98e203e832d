package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot receives Telegram updates and feeds them to the Router one at a time.
type Bot struct {
	api     telegramAPI
	router  *Router
	ownerID int64
	reload  <-chan struct{}
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, router *Router, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized on telegram", "bot", api.Self.UserName)

	return &Bot{
		api:     api,
		router:  router,
		ownerID: router.cfg.OwnerUserID,
		log:     log,
	}, nil
}

// ReloadOn makes Run reload the rules whenever ch signals.
func (b *Bot) ReloadOn(ch <-chan struct{}) {
	b.reload = ch
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "channel_post"}

	updates := b.api.GetUpdatesChan(u)

	var sweep <-chan time.Time
	if idle := b.router.cfg.SessionIdle; idle > 0 {
		ticker := time.NewTicker(sweepInterval(idle))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := eventFromUpdate(update, b.ownerID)
			if !ok {
				continue
			}
			b.log.Debug("message", "chat_id", ev.ChatID, "message_id", ev.MessageID, "outgoing", ev.Outgoing)
			b.router.Handle(ctx, ev, b)
		case _, ok := <-b.reload:
			if !ok {
				b.reload = nil
				continue
			}
			b.log.Info("rules file changed, reloading")
			b.router.Reload()
		case <-sweep:
			b.router.ExpireIdle(b)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// sweepInterval checks for idle sessions at least twice per timeout, and at
// most once a minute.
func sweepInterval(idle time.Duration) time.Duration {
	return max(min(idle/2, time.Minute), time.Second)
}
