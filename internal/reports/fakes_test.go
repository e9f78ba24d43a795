package reports

import (
	"context"
	"sync"

	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/eternisai/report-notifier/internal/metrics"
	"github.com/eternisai/report-notifier/internal/notifications"
)

type fakeStore struct {
	mu        sync.Mutex
	tokens    map[string][]string
	listErr   error
	listCalls int
	deletes   []string
}

func (s *fakeStore) ListTokens(_ context.Context, uid string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.tokens[uid]...), nil
}

func (s *fakeStore) DeleteToken(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, token)
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	codes  map[string]string
	err    error
	calls  [][]string
	events []notifications.NotificationEvent
}

func (s *fakeSender) SendMulticast(_ context.Context, tokens []string, event notifications.NotificationEvent) ([]notifications.SendOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), tokens...))
	s.events = append(s.events, event)
	if s.err != nil {
		return nil, s.err
	}
	outcomes := make([]notifications.SendOutcome, len(tokens))
	for i, token := range tokens {
		code := s.codes[token]
		outcomes[i] = notifications.SendOutcome{Token: token, Success: code == "", ErrorCode: code}
	}
	return outcomes, nil
}

type testEnv struct {
	store   *fakeStore
	sender  *fakeSender
	metrics *metrics.DispatchMetrics
	service *Service
}

func newTestEnv(tokens map[string][]string, opts Options) *testEnv {
	log := logger.Discard()
	store := &fakeStore{tokens: tokens}
	sender := &fakeSender{codes: map[string]string{}}

	service := NewService(
		notifications.NewComposer(nil),
		notifications.NewDispatcher(store, sender, log),
		notifications.NewPruner(store, 4, log),
		nil,
		log,
		opts,
	)

	return &testEnv{store: store, sender: sender, service: service}
}

func defaultOptions() Options {
	return Options{Enabled: true, MaxConcurrentInvocations: 10}
}

// recordingInvoker captures events handed to it by a trigger.
type recordingInvoker struct {
	mu      sync.Mutex
	events  []ChangeEvent
	outcome Outcome
	err     error
}

func (r *recordingInvoker) Invoke(_ context.Context, event ChangeEvent) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	out := r.outcome
	out.ReportID = event.ReportID
	return out, r.err
}
