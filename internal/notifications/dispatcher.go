package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eternisai/report-notifier/internal/logger"
)

var (
	// ErrTokenLookup wraps failures to read a user's tokens.
	ErrTokenLookup = errors.New("token lookup failed")
	// ErrDispatchFailed wraps wholesale failures of the batched send.
	ErrDispatchFailed = errors.New("dispatch failed")
)

// Dispatcher fans a notification out to all of a user's devices.
type Dispatcher struct {
	store  TokenStore
	sender Sender
	logger *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store TokenStore, sender Sender, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		sender: sender,
		logger: logger.WithComponent("dispatcher"),
	}
}

// Dispatch sends event to every token registered for uid in a single call.
// A user without tokens yields (nil, nil) and no provider call. There is no
// retry: a failed batch is returned as an error wrapping ErrDispatchFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, uid string, event NotificationEvent) ([]SendOutcome, error) {
	log := d.logger.WithContext(ctx)

	tokens, err := d.store.ListTokens(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenLookup, err)
	}

	if len(tokens) == 0 {
		log.Info("no registered devices, nothing to send",
			slog.String("user_id", uid),
			slog.String("notif_id", event.NotifID))
		return nil, nil
	}

	log.Info("sending notification",
		slog.String("user_id", uid),
		slog.String("notif_id", event.NotifID),
		slog.String("title", event.Title),
		slog.Int("device_count", len(tokens)))

	outcomes, err := d.sender.SendMulticast(ctx, tokens, event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	if len(outcomes) != len(tokens) {
		return nil, fmt.Errorf("%w: provider returned %d results for %d tokens",
			ErrDispatchFailed, len(outcomes), len(tokens))
	}

	successCount := 0
	for _, outcome := range outcomes {
		if outcome.Success {
			successCount++
			continue
		}
		log.Warn("delivery to device failed",
			slog.String("token_prefix", tokenPrefix(outcome.Token)),
			slog.String("error_code", outcome.ErrorCode))
	}

	log.Info("notification summary",
		slog.Int("total_devices", len(tokens)),
		slog.Int("successful", successCount),
		slog.Int("failed", len(tokens)-successCount))

	return outcomes, nil
}

// tokenPrefix shortens a token for logging.
func tokenPrefix(token string) string {
	return token[:min(10, len(token))] + "..."
}
