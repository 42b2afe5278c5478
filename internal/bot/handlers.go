package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maauso/screenshot-bot/internal/broadcast"
	"github.com/maauso/screenshot-bot/internal/screenshot"
	"github.com/maauso/screenshot-bot/internal/userstore"
)

// supportedExtensions are matched case-insensitively.
var supportedExtensions = []string{".mp4", ".mkv"}

// IsSupported reports whether fileName has an accepted video extension.
func IsSupported(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, e := range supportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() || msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Video != nil || msg.Document != nil {
		b.handleUpload(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.remember(ctx, msg.From)
		_, _ = b.reply(msg, textStart, true)
	case "help":
		_, _ = b.reply(msg, textHelp, true)
	case "cancel":
		b.handleCancel(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	case "broadcast":
		b.handleBroadcast(ctx, msg)
	}
}

// remember upserts the sender into the user store.
func (b *Bot) remember(ctx context.Context, from *tgbotapi.User) {
	err := b.users.Upsert(ctx, userstore.User{
		ID:        from.ID,
		FirstName: from.FirstName,
		Username:  from.UserName,
	})
	if err != nil {
		b.logger.Warn("store user",
			slog.Int64("user_id", from.ID),
			slog.String("error", err.Error()),
		)
	}
}

type upload struct {
	fileID   string
	fileName string
	size     int
}

func uploadOf(msg *tgbotapi.Message) (upload, bool) {
	switch {
	case msg.Video != nil:
		return upload{fileID: msg.Video.FileID, fileName: msg.Video.FileName, size: msg.Video.FileSize}, true
	case msg.Document != nil:
		return upload{fileID: msg.Document.FileID, fileName: msg.Document.FileName, size: msg.Document.FileSize}, true
	default:
		return upload{}, false
	}
}

func (b *Bot) handleUpload(ctx context.Context, msg *tgbotapi.Message) {
	file, ok := uploadOf(msg)
	if !ok {
		return
	}
	userID := msg.From.ID
	logger := b.logger.With(
		slog.Int64("user_id", userID),
		slog.String("file_name", file.fileName),
	)

	if !IsSupported(file.fileName) {
		logger.Info("unsupported upload rejected")
		_, _ = b.reply(msg, textUnsupported, true)
		return
	}

	b.remember(ctx, msg.From)

	limit := b.downloader.maxBytes
	if limit > 0 && int64(file.size) > limit {
		logger.Info("upload too large", slog.Int("size", file.size))
		_, _ = b.reply(msg, fmt.Sprintf(textTooLarge, limit/(1024*1024)), false)
		return
	}

	status, err := b.reply(msg, textDownloading, false)
	if err != nil {
		return
	}

	path, err := b.downloader.download(ctx, file.fileID, file.fileName)
	if err != nil {
		logger.Error("download failed", slog.String("error", err.Error()))
		text := textDownloadFailed
		if errors.Is(err, ErrFileTooLarge) {
			text = fmt.Sprintf(textTooLarge, limit/(1024*1024))
		}
		b.edit(status.Chat.ID, status.MessageID, text)
		return
	}

	b.edit(status.Chat.ID, status.MessageID, textDownloaded)
	if replaced := b.sessions.Put(ctx, userID, path); replaced {
		logger.Info("previous pending upload replaced")
	}

	if _, err := b.users.Increment(ctx, userstore.CounterFilesProcessed); err != nil {
		logger.Warn("increment files counter", slog.String("error", err.Error()))
	}

	prompt := tgbotapi.NewMessage(msg.Chat.ID, textChooseCount)
	prompt.ReplyToMessageID = msg.MessageID
	prompt.ReplyMarkup = CountKeyboard()
	if _, err := b.client.Send(prompt); err != nil {
		logger.Warn("send count keyboard", slog.String("error", err.Error()))
	}
	logger.Info("upload stored, waiting for count")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	count, ok := ParseCount(cb.Data)
	if !ok || cb.From == nil || cb.Message == nil {
		b.answer(tgbotapi.NewCallback(cb.ID, ""))
		return
	}
	userID := cb.From.ID

	path, ok := b.sessions.Take(userID)
	if !ok {
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, textNoVideo))
		return
	}
	b.answer(tgbotapi.NewCallback(cb.ID, ""))

	chatID := cb.Message.Chat.ID
	b.edit(chatID, cb.Message.MessageID, fmt.Sprintf(textGenerating, count))

	delivery := &chatDelivery{client: b.client, chatID: chatID, replyTo: cb.Message.MessageID}
	res, err := b.pipeline.Run(ctx, screenshot.Request{
		UserID:     userID,
		SourcePath: path,
		Count:      count,
	}, delivery)
	if err != nil {
		b.logger.Error("screenshot request failed",
			slog.Int64("user_id", userID),
			slog.String("outcome", res.Outcome.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	cancelled, err := b.sessions.Cancel(ctx, msg.From.ID)
	if err != nil {
		b.logger.Warn("cancel upload",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
	}
	if cancelled {
		_, _ = b.reply(msg, textCancelled, false)
		return
	}
	_, _ = b.reply(msg, textNoPending, false)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From) {
		_, _ = b.reply(msg, textUnauthorized, false)
		return
	}

	users, err := b.users.Count(ctx)
	if err != nil {
		b.logger.Error("count users", slog.String("error", err.Error()))
	}
	files, err := b.users.Value(ctx, userstore.CounterFilesProcessed)
	if err != nil {
		b.logger.Error("read files counter", slog.String("error", err.Error()))
	}
	_, _ = b.reply(msg, fmt.Sprintf(textStats, users, files, b.sessions.Len()), false)
}

func (b *Bot) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From) {
		b.logger.Warn("unauthorized broadcast attempt", slog.Int64("user_id", msg.From.ID))
		_, _ = b.reply(msg, textUnauthorized, false)
		return
	}
	if msg.ReplyToMessage == nil {
		_, _ = b.reply(msg, textBroadcastUsage, false)
		return
	}

	_, _ = b.reply(msg, textBroadcasting, false)
	report, err := b.broadcaster.Run(ctx, broadcast.Message{
		FromChatID: msg.Chat.ID,
		MessageID:  msg.ReplyToMessage.MessageID,
	})
	if err != nil {
		_, _ = b.reply(msg, fmt.Sprintf(textBroadcastStop, err,
			report.Sent, report.Failed, report.RateLimited, report.Pruned), false)
		return
	}
	_, _ = b.reply(msg, fmt.Sprintf(textBroadcastDone,
		report.Sent, report.Failed, report.RateLimited, report.Pruned), false)
}
