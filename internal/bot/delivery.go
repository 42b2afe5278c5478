package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maauso/screenshot-bot/internal/media"
	"github.com/maauso/screenshot-bot/internal/screenshot"
)

// maxAlbumSize is the largest media group Telegram accepts. The smallest is two.
const maxAlbumSize = 10

// Compile-time check that chatDelivery implements screenshot.Delivery.
var _ screenshot.Delivery = (*chatDelivery)(nil)

// chatDelivery reports pipeline results as replies in one chat.
type chatDelivery struct {
	client  Client
	chatID  int64
	replyTo int
}

func (d *chatDelivery) reply(text string) error {
	msg := tgbotapi.NewMessage(d.chatID, text)
	msg.ReplyToMessageID = d.replyTo
	_, err := d.client.Send(msg)
	return err
}

func (d *chatDelivery) DurationUnavailable(context.Context) error {
	return d.reply(textNoDuration)
}

func (d *chatDelivery) FrameFailed(_ context.Context, offset int, err error) error {
	return d.reply(fmt.Sprintf(textFrameFailed, offset, frameError(err)))
}

func (d *chatDelivery) NoScreenshots(context.Context) error {
	return d.reply(textNoScreenshots)
}

// SendScreenshots sends the images in order. A single image goes out as a
// photo; more are split into albums of two to ten.
func (d *chatDelivery) SendScreenshots(_ context.Context, shots []screenshot.Screenshot) error {
	if len(shots) == 1 {
		photo := tgbotapi.NewPhoto(d.chatID, tgbotapi.FilePath(shots[0].Path))
		photo.Caption = shots[0].Caption
		photo.ReplyToMessageID = d.replyTo
		if _, err := d.client.Send(photo); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	}

	start := 0
	for _, size := range albumSizes(len(shots)) {
		end := start + size

		files := make([]interface{}, 0, size)
		for _, shot := range shots[start:end] {
			photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(shot.Path))
			photo.Caption = shot.Caption
			files = append(files, photo)
		}

		group := tgbotapi.NewMediaGroup(d.chatID, files)
		group.ReplyToMessageID = d.replyTo
		if _, err := d.client.SendMediaGroup(group); err != nil {
			return fmt.Errorf("send album %d-%d: %w", start+1, end, err)
		}
		start = end
	}
	return nil
}

// albumSizes splits n > 1 images into the fewest albums Telegram accepts,
// with sizes differing by at most one so none ends up with a single item.
func albumSizes(n int) []int {
	albums := (n + maxAlbumSize - 1) / maxAlbumSize
	sizes := make([]int, albums)
	for i := range sizes {
		sizes[i] = n / albums
		if i < n%albums {
			sizes[i]++
		}
	}
	return sizes
}

// frameError keeps the user facing part of an extraction error short.
func frameError(err error) string {
	var ffErr *media.FFmpegError
	if errors.As(err, &ffErr) {
		return ffErr.Short()
	}
	return err.Error()
}
