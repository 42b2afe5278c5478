package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maauso/screenshot-bot/internal/broadcast"
)

// Compile-time check that Sender implements broadcast.Sender.
var _ broadcast.Sender = (*Sender)(nil)

// Bad Request descriptions that mean the chat is gone for good.
var unreachableDescriptions = []string{
	"chat not found",
	"user not found",
	"peer_id_invalid",
	"user is deactivated",
}

// Sender relays broadcast messages with copyMessage.
type Sender struct {
	client Client
}

// NewSender creates a Sender.
func NewSender(client Client) *Sender {
	return &Sender{client: client}
}

// Relay copies msg into the chat of user to.
func (s *Sender) Relay(ctx context.Context, to int64, msg broadcast.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client.CopyMessage(tgbotapi.NewCopyMessage(to, msg.FromChatID, msg.MessageID))
	return classifyError(err)
}

// classifyError maps Telegram API errors onto the broadcast error kinds.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.RetryAfter > 0 {
		return &broadcast.RateLimitError{
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	switch apiErr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", broadcast.ErrRecipientUnreachable, err)
	case http.StatusBadRequest:
		desc := strings.ToLower(apiErr.Message)
		for _, d := range unreachableDescriptions {
			if strings.Contains(desc, d) {
				return fmt.Errorf("%w: %w", broadcast.ErrRecipientUnreachable, err)
			}
		}
	}
	return err
}
