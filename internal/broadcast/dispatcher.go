// Package broadcast relays one operator message to every known user.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/maauso/screenshot-bot/internal/userstore"
)

// ErrRecipientUnreachable marks a recipient that will never accept messages
// again (blocked the bot, deleted account, unknown chat).
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// RateLimitError is returned by a Sender when the platform asks the caller
// to back off before sending anything else.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Message identifies the message to relay by its origin.
type Message struct {
	FromChatID int64
	MessageID  int
}

// Sender relays a message to one recipient.
type Sender interface {
	Relay(ctx context.Context, to int64, msg Message) error
}

// Users is the part of the user store a broadcast needs.
type Users interface {
	All(ctx context.Context) iter.Seq2[userstore.User, error]
	Delete(ctx context.Context, id int64) error
}

// Report counts what happened during a broadcast.
type Report struct {
	Sent        int
	Failed      int
	RateLimited int
	Pruned      int
}

// Total is the number of recipients that were attempted.
func (r Report) Total() int {
	return r.Sent + r.Failed + r.RateLimited
}

// DefaultDelay is the pause after every successful send.
const DefaultDelay = 100 * time.Millisecond

// Dispatcher sends one message to every user in turn.
type Dispatcher struct {
	users  Users
	sender Sender
	delay  time.Duration
	logger *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a Dispatcher with DefaultDelay between sends.
func NewDispatcher(users Users, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		users:  users,
		sender: sender,
		delay:  DefaultDelay,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// SetDelay configures the pause after each successful send. Negative values are ignored.
func (d *Dispatcher) SetDelay(delay time.Duration) {
	if delay >= 0 {
		d.delay = delay
	}
}

// Run relays msg to every user once. A rate-limited recipient is skipped
// after waiting the requested time; an unreachable one is removed from the
// store. Run returns early with the partial report when ctx is cancelled or
// the user stream fails.
func (d *Dispatcher) Run(ctx context.Context, msg Message) (Report, error) {
	var report Report
	logger := d.logger.With(
		slog.Int64("from_chat_id", msg.FromChatID),
		slog.Int("message_id", msg.MessageID),
	)
	logger.Info("broadcast started")

	for user, err := range d.users.All(ctx) {
		if err != nil {
			logger.Error("broadcast aborted: reading users failed",
				slog.String("error", err.Error()),
				slog.Int("sent", report.Sent),
			)
			return report, fmt.Errorf("list users: %w", err)
		}

		if err := d.deliver(ctx, logger, user.ID, msg, &report); err != nil {
			logger.Warn("broadcast interrupted",
				slog.String("error", err.Error()),
				slog.Int("sent", report.Sent),
			)
			return report, err
		}
	}

	logger.Info("broadcast finished",
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Int("rate_limited", report.RateLimited),
		slog.Int("pruned", report.Pruned),
	)
	return report, nil
}

// deliver makes exactly one attempt for one recipient. Only context
// cancellation is returned as an error.
func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, userID int64, msg Message, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.sender.Relay(ctx, userID, msg)

	var rateLimited *RateLimitError
	switch {
	case err == nil:
		report.Sent++
		return d.sleep(ctx, d.delay)

	case errors.As(err, &rateLimited):
		report.RateLimited++
		logger.Warn("rate limited during broadcast",
			slog.Int64("user_id", userID),
			slog.Duration("retry_after", rateLimited.RetryAfter),
		)
		return d.sleep(ctx, rateLimited.RetryAfter)

	case errors.Is(err, ErrRecipientUnreachable):
		report.Failed++
		if err := d.users.Delete(ctx, userID); err != nil {
			logger.Error("failed to prune unreachable user",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		report.Pruned++
		logger.Info("pruned unreachable user", slog.Int64("user_id", userID))
		return nil

	case ctx.Err() != nil:
		return ctx.Err()

	default:
		report.Failed++
		logger.Warn("broadcast send failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
