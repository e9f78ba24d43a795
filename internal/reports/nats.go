package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/nats-io/nats.go"
)

// NATSSubscriber consumes change events published by report workflows.
// Instances share a queue group so every event is handled by one instance.
//
// Messages published with a reply subject get the Outcome (or an error) back:
//
//	{"outcome": {...}}  or  {"error": "..."}
type NATSSubscriber struct {
	nc           *nats.Conn
	subject      string
	queueGroup   string
	invoker      Invoker
	logger       *logger.Logger
	subscription *nats.Subscription
	inflight     sync.WaitGroup
}

// NATSReply is the response sent to request-reply publishers.
type NATSReply struct {
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// NewNATSSubscriber creates a new subscriber.
// Returns nil if NATS connection is not available.
func NewNATSSubscriber(nc *nats.Conn, subject, queueGroup string, invoker Invoker, logger *logger.Logger) *NATSSubscriber {
	if nc == nil {
		return nil
	}

	return &NATSSubscriber{
		nc:         nc,
		subject:    subject,
		queueGroup: queueGroup,
		invoker:    invoker,
		logger:     logger.WithComponent("report-trigger-nats"),
	}
}

// Start begins consuming change events.
func (s *NATSSubscriber) Start() error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queueGroup, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}

	s.subscription = sub
	s.logger.Info("nats trigger started",
		slog.String("subject", s.subject),
		slog.String("queue_group", s.queueGroup))

	return nil
}

// Stop drains the subscription and waits for in-flight invocations.
func (s *NATSSubscriber) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
	}
	s.inflight.Wait()
	s.logger.Info("nats trigger stopped")
	return nil
}

// handleMessage hands each event to its own goroutine; NATS serializes
// callbacks per subscription and the invoker applies the concurrency limit.
func (s *NATSSubscriber) handleMessage(msg *nats.Msg) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.process(msg)
	}()
}

func (s *NATSSubscriber) process(msg *nats.Msg) {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("dropping malformed change event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
		s.reply(msg, NATSReply{Error: fmt.Sprintf("malformed event: %v", err)})
		return
	}

	ctx := context.Background()
	if requestID := msg.Header.Get("X-Request-ID"); requestID != "" {
		ctx = logger.WithRequestID(ctx, requestID)
	}

	outcome, err := s.invoker.Invoke(ctx, event)
	if err != nil {
		s.logger.LogError(ctx, err, "report status trigger failed",
			slog.String("report_id", event.ReportID))
		s.reply(msg, NATSReply{Error: err.Error()})
		return
	}

	s.reply(msg, NATSReply{Outcome: &outcome})
}

func (s *NATSSubscriber) reply(msg *nats.Msg, resp NATSReply) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal reply", slog.String("error", err.Error()))
		return
	}

	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slog.String("error", err.Error()))
	}
}
