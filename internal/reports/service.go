package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/eternisai/report-notifier/internal/metrics"
	"github.com/eternisai/report-notifier/internal/notifications"
	"golang.org/x/sync/semaphore"
)

// Invoker runs one change event through the notification pipeline.
type Invoker interface {
	Invoke(ctx context.Context, event ChangeEvent) (Outcome, error)
}

// Options are the per-process invocation limits.
type Options struct {
	// Enabled false composes notifications but never dispatches them.
	Enabled bool
	// MaxConcurrentInvocations bounds how many events are handled at once.
	MaxConcurrentInvocations int64
	// InvocationTimeout bounds a single invocation.
	InvocationTimeout time.Duration
}

// Service turns report status changes into push notifications.
type Service struct {
	composer   *notifications.Composer
	dispatcher *notifications.Dispatcher
	pruner     *notifications.Pruner
	metrics    *metrics.DispatchMetrics
	logger     *logger.Logger

	enabled bool
	slots   *semaphore.Weighted
	timeout time.Duration
}

// NewService creates a new report notification service.
func NewService(
	composer *notifications.Composer,
	dispatcher *notifications.Dispatcher,
	pruner *notifications.Pruner,
	dispatchMetrics *metrics.DispatchMetrics,
	logger *logger.Logger,
	opts Options,
) *Service {
	if opts.MaxConcurrentInvocations < 1 {
		opts.MaxConcurrentInvocations = 1
	}

	return &Service{
		composer:   composer,
		dispatcher: dispatcher,
		pruner:     pruner,
		metrics:    dispatchMetrics,
		logger:     logger.WithComponent("report-notifications"),
		enabled:    opts.Enabled,
		slots:      semaphore.NewWeighted(opts.MaxConcurrentInvocations),
		timeout:    opts.InvocationTimeout,
	}
}

// Invoke handles event within the configured concurrency and time limits.
// Cancelling ctx only aborts waiting for a free slot: once started, the
// invocation runs until it finishes or the invocation timeout expires.
func (s *Service) Invoke(ctx context.Context, event ChangeEvent) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return Outcome{ReportID: event.ReportID, State: StateFailed}, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return Outcome{ReportID: event.ReportID, State: StateFailed}, fmt.Errorf("waiting for invocation slot: %w", err)
	}
	defer s.slots.Release(1)

	done := s.metrics.InvocationStarted()
	defer done()

	ctx = context.WithoutCancel(ctx)
	if _, ok := ctx.Value(logger.ContextKeyRequestID).(string); !ok {
		ctx = logger.WithRequestID(ctx, logger.GenerateRequestID())
	}
	ctx = logger.WithReportID(ctx, event.ReportID)
	ctx = logger.WithOperation(ctx, "handle_status_change")

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	outcome, err := s.HandleStatusChange(ctx, event)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.metrics.RecordInvocationError("timeout")
		return outcome, fmt.Errorf("invocation timed out after %v: %w", s.timeout, err)
	}

	return outcome, err
}

// HandleStatusChange runs the pipeline for one event:
// normalize, skip or compose, load tokens, send, prune. Skips are not errors.
// Only token lookup and batch send failures are returned.
func (s *Service) HandleStatusChange(ctx context.Context, event ChangeEvent) (Outcome, error) {
	log := s.logger.WithContext(ctx)
	outcome := Outcome{ReportID: event.ReportID}

	previousKey := notifications.StatusKey(event.Before.Status)
	nextKey := notifications.StatusKey(event.After.Status)
	uid := event.After.UID

	notification, composed := s.composer.Compose(event.Before.Status, event.After.Status, event.After.Fields(), event.ReportID)

	switch {
	case !composed && nextKey == "":
		outcome.State = StateSkippedEmptyStatus
	case !composed:
		outcome.State = StateSkippedNoChange
	case !ValidUID(uid):
		outcome.State = StateSkippedNoUser
	}
	if outcome.State.Skipped() {
		log.Debug("skipping report change",
			slog.String("state", string(outcome.State)),
			slog.String("before", previousKey),
			slog.String("after", nextKey))
		s.metrics.RecordEvent(string(outcome.State))
		return outcome, nil
	}

	ctx = logger.WithUserID(ctx, uid)
	log = s.logger.WithContext(ctx)

	outcome.Event = &notification
	outcome.NotifID = notification.NotifID

	log.Info("report status changed",
		slog.String("before", previousKey),
		slog.String("after", nextKey),
		slog.String("notif_id", notification.NotifID))

	if !s.enabled {
		log.Debug("push notifications disabled, skipping",
			slog.String("notif_id", notification.NotifID))
		outcome.State = StateDisabled
		s.metrics.RecordEvent(string(outcome.State))
		return outcome, nil
	}

	start := time.Now()
	deliveries, err := s.dispatcher.Dispatch(ctx, uid, notification)
	s.metrics.ObserveDispatch(time.Since(start))
	if err != nil {
		outcome.State = StateFailed
		stage := "dispatch"
		if errors.Is(err, notifications.ErrTokenLookup) {
			stage = "token_lookup"
		}
		s.metrics.RecordInvocationError(stage)
		s.metrics.RecordEvent(string(outcome.State))
		log.Error("report notification failed",
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		return outcome, err
	}

	if len(deliveries) == 0 {
		outcome.State = StateNoTokens
		s.metrics.RecordEvent(string(outcome.State))
		return outcome, nil
	}

	outcome.Deliveries = deliveries
	for _, d := range deliveries {
		s.metrics.RecordDelivery(d.Success, d.ErrorCode)
		if d.Success {
			outcome.Sent++
		} else {
			outcome.Failed++
		}
	}

	outcome.Prune = s.pruner.Prune(ctx, uid, deliveries)
	outcome.Pruned = len(outcome.Prune.Deleted)
	s.metrics.RecordPrune(len(outcome.Prune.Deleted), len(outcome.Prune.Failed))

	outcome.State = StatePruned
	s.metrics.RecordEvent(string(outcome.State))

	log.Info("report notification complete",
		slog.String("notif_id", notification.NotifID),
		slog.Int("sent", outcome.Sent),
		slog.Int("failed", outcome.Failed),
		slog.Int("pruned", outcome.Pruned))

	return outcome, nil
}
