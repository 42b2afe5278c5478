// Package bot connects the screenshot pipeline, the session store and the
// broadcast dispatcher to Telegram.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maauso/screenshot-bot/internal/broadcast"
	"github.com/maauso/screenshot-bot/internal/screenshot"
	"github.com/maauso/screenshot-bot/internal/session"
	"github.com/maauso/screenshot-bot/internal/userstore"
)

// pollTimeout is the long polling timeout in seconds.
const pollTimeout = 30

// Pipeline runs one screenshot request.
type Pipeline interface {
	Run(ctx context.Context, req screenshot.Request, delivery screenshot.Delivery) (screenshot.Result, error)
}

// Broadcaster relays a message to every user.
type Broadcaster interface {
	Run(ctx context.Context, msg broadcast.Message) (broadcast.Report, error)
}

// Deps are the collaborators a Bot works with.
type Deps struct {
	Sessions    *session.Store
	Pipeline    Pipeline
	Users       userstore.Store
	Broadcaster Broadcaster
	Files       TempSaver
}

// Bot handles Telegram updates. Each update runs in its own goroutine.
type Bot struct {
	client      Client
	sessions    *session.Store
	pipeline    Pipeline
	users       userstore.Store
	broadcaster Broadcaster
	downloader  *downloader
	adminID     int64
	logger      *slog.Logger

	wg sync.WaitGroup
}

// New creates a Bot. adminID is the only user allowed to run operator commands.
func New(client Client, deps Deps, adminID int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		client:      client,
		sessions:    deps.Sessions,
		pipeline:    deps.Pipeline,
		users:       deps.Users,
		broadcaster: deps.Broadcaster,
		downloader: &downloader{
			client: client,
			http:   &http.Client{Timeout: 5 * time.Minute},
			files:  deps.Files,
		},
		adminID: adminID,
		logger:  logger,
	}
}

// SetMaxUploadBytes limits the size of accepted uploads. Zero disables the limit.
func (b *Bot) SetMaxUploadBytes(n int64) {
	if n >= 0 {
		b.downloader.maxBytes = n
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for every
// in-flight handler to return.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.client.GetUpdatesChan(cfg)

	b.logger.Info("bot started, polling for updates")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.logger.Info("bot stopping, waiting for in-flight updates")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches one update. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update",
				slog.Int("update_id", update.UpdateID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(u *tgbotapi.User) bool {
	return u != nil && u.ID == b.adminID
}

// reply sends text as a reply to msg. Failures are logged only.
func (b *Bot) reply(msg *tgbotapi.Message, text string, markdown bool) (tgbotapi.Message, error) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if markdown {
		out.ParseMode = tgbotapi.ModeMarkdown
	}
	sent, err := b.client.Send(out)
	if err != nil {
		b.logger.Warn("send reply",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
	return sent, err
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	if _, err := b.client.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.logger.Warn("edit message",
			slog.Int64("chat_id", chatID),
			slog.Int("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) answer(cb tgbotapi.CallbackConfig) {
	if _, err := b.client.Request(cb); err != nil {
		b.logger.Warn("answer callback", slog.String("error", err.Error()))
	}
}
