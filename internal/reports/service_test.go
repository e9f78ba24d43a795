package reports

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/eternisai/report-notifier/internal/metrics"
	"github.com/eternisai/report-notifier/internal/notifications"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedNotificationPrunesUnregisteredToken(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1", "t2"}}, defaultOptions())
	env.sender.codes["t2"] = notifications.CodeUnregistered

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R1",
		Before:   ReportSnapshot{Status: "on process", UID: "u1"},
		After:    ReportSnapshot{Status: "resolved", UID: "u1"},
	})
	require.NoError(t, err)

	require.Len(t, env.sender.calls, 1)
	assert.Equal(t, []string{"t1", "t2"}, env.sender.calls[0])

	event := env.sender.events[0]
	assert.Equal(t, "Report resolved", event.Title)
	assert.Equal(t, "report:R1:resolved", event.NotifID)

	assert.Equal(t, []string{"t2"}, env.store.deletes)

	assert.Equal(t, StatePruned, outcome.State)
	assert.Equal(t, "report:R1:resolved", outcome.NotifID)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.Pruned)
}

func TestOnProcessNotificationUsesServiceType(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1"}}, defaultOptions())

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R2",
		Before:   ReportSnapshot{Status: ""},
		After:    ReportSnapshot{Status: "on process", UID: "u1", ServiceType: "WiFi"},
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Event)
	assert.Equal(t, "onprocess", outcome.Event.StatusKey)
	assert.Contains(t, outcome.Event.Body, "WiFi")
	assert.Empty(t, env.store.deletes)
}

func TestUnknownStatusUsesFallback(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1"}}, defaultOptions())

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R3",
		Before:   ReportSnapshot{Status: "on process", UID: "u1"},
		After:    ReportSnapshot{Status: "escalated", UID: "u1"},
	})
	require.NoError(t, err)

	require.Len(t, env.sender.events, 1)
	assert.Equal(t, "Report updated", env.sender.events[0].Title)
	assert.Equal(t, "Report R3 is now escalated", env.sender.events[0].Body)
	assert.Equal(t, StatePruned, outcome.State)
}

func TestSkipConditions(t *testing.T) {
	tests := []struct {
		name   string
		before ReportSnapshot
		after  ReportSnapshot
		want   State
	}{
		{
			name:   "identical status",
			before: ReportSnapshot{Status: "resolved", UID: "u1"},
			after:  ReportSnapshot{Status: "resolved", UID: "u1"},
			want:   StateSkippedNoChange,
		},
		{
			name:   "status differs only in case and spacing",
			before: ReportSnapshot{Status: "On Process", UID: "u1"},
			after:  ReportSnapshot{Status: " on process ", UID: "u1"},
			want:   StateSkippedNoChange,
		},
		{
			name:   "status differs only in inner whitespace",
			before: ReportSnapshot{Status: "on process", UID: "u1"},
			after:  ReportSnapshot{Status: "onprocess", UID: "u1"},
			want:   StateSkippedNoChange,
		},
		{
			name:   "empty new status",
			before: ReportSnapshot{Status: "resolved", UID: "u1"},
			after:  ReportSnapshot{Status: "  ", UID: "u1"},
			want:   StateSkippedEmptyStatus,
		},
		{
			name:   "user id that cannot address a token collection",
			before: ReportSnapshot{Status: "on process"},
			after:  ReportSnapshot{Status: "resolved", UID: "a/b"},
			want:   StateSkippedNoUser,
		},
		{
			name:   "no owning user",
			before: ReportSnapshot{Status: "on process"},
			after:  ReportSnapshot{Status: "resolved"},
			want:   StateSkippedNoUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(map[string][]string{"u1": {"t1"}}, defaultOptions())

			outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
				ReportID: "R1", Before: tt.before, After: tt.after,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.State)
			assert.Empty(t, env.sender.calls)
			assert.Zero(t, env.store.listCalls)
		})
	}
}

func TestNoTokensMeansNoSend(t *testing.T) {
	env := newTestEnv(map[string][]string{}, defaultOptions())

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "lonely"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateNoTokens, outcome.State)
	assert.Empty(t, env.sender.calls)
	assert.Equal(t, 1, env.store.listCalls)
}

func TestDisabledComposesButDoesNotSend(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1"}}, Options{Enabled: false, MaxConcurrentInvocations: 1})

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, outcome.State)
	assert.Equal(t, "report:R1:resolved", outcome.NotifID)
	assert.Empty(t, env.sender.calls)
	assert.Zero(t, env.store.listCalls)
}

func TestWholesaleDispatchFailure(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1", "t2"}}, defaultOptions())
	env.sender.err = errors.New("fcm unavailable")

	outcome, err := env.service.HandleStatusChange(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "u1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, notifications.ErrDispatchFailed)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Len(t, env.sender.calls, 1)
	assert.Empty(t, env.store.deletes)
}

func TestRedeliveryKeepsNotificationID(t *testing.T) {
	env := newTestEnv(map[string][]string{"u1": {"t1"}}, defaultOptions())
	event := ChangeEvent{
		ReportID: "R1",
		Before:   ReportSnapshot{Status: "on process", UID: "u1"},
		After:    ReportSnapshot{Status: "Resolved", UID: "u1"},
	}

	first, err := env.service.HandleStatusChange(context.Background(), event)
	require.NoError(t, err)
	second, err := env.service.HandleStatusChange(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, first.NotifID, second.NotifID)
	require.Len(t, env.sender.events, 2)
	assert.Equal(t, env.sender.events[0].NotifID, env.sender.events[1].NotifID)
}

func TestInvokeRejectsInvalidEvent(t *testing.T) {
	env := newTestEnv(nil, defaultOptions())

	_, err := env.service.Invoke(context.Background(), ChangeEvent{After: ReportSnapshot{Status: "resolved", UID: "u1"}})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = env.service.Invoke(context.Background(), ChangeEvent{ReportID: "a/b"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = env.service.Invoke(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "a/b"},
	})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Zero(t, env.store.listCalls)
}

func TestValidateBoundsPayloadFields(t *testing.T) {
	valid := ChangeEvent{ReportID: "R1", After: ReportSnapshot{Status: "resolved", UID: "u1", ServiceType: "WiFi"}}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(e *ChangeEvent)
	}{
		{name: "long report id", mutate: func(e *ChangeEvent) { e.ReportID = strings.Repeat("r", MaxReportIDLength+1) }},
		{name: "long uid", mutate: func(e *ChangeEvent) { e.After.UID = strings.Repeat("u", MaxUIDLength+1) }},
		{name: "uid with slash", mutate: func(e *ChangeEvent) { e.After.UID = "a/b" }},
		{name: "long status", mutate: func(e *ChangeEvent) { e.After.Status = strings.Repeat("s", MaxStatusLength+1) }},
		{name: "long service type", mutate: func(e *ChangeEvent) { e.After.ServiceType = strings.Repeat("w", MaxLabelLength+1) }},
		{name: "long platform name", mutate: func(e *ChangeEvent) { e.After.PlatformName = strings.Repeat("p", MaxLabelLength+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)
			assert.ErrorIs(t, event.Validate(), ErrInvalidEvent)
		})
	}
}

func TestMaximalEventFitsFCMPayload(t *testing.T) {
	event, ok := notifications.NewComposer(nil).Compose("",
		strings.Repeat("s", MaxStatusLength),
		notifications.ReportFields{UID: strings.Repeat("u", MaxUIDLength), ServiceType: strings.Repeat("w", MaxLabelLength)},
		strings.Repeat("r", MaxReportIDLength))
	require.True(t, ok)

	size := len(event.Title) + len(event.Body)
	for k, v := range event.Data() {
		size += len(k) + len(v)
	}
	assert.Less(t, size, 4096)
}

func TestInvokeRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metrics.NewDispatchMetrics(registry)
	require.NoError(t, err)

	log := logger.Discard()
	store := &fakeStore{tokens: map[string][]string{"u1": {"t1", "t2"}}}
	sender := &fakeSender{codes: map[string]string{"t2": notifications.CodeInvalidArgument}}
	service := NewService(
		notifications.NewComposer(nil),
		notifications.NewDispatcher(store, sender, log),
		notifications.NewPruner(store, 2, log),
		m,
		log,
		defaultOptions(),
	)

	_, err = service.Invoke(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(StatePruned))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("failure", notifications.CodeInvalidArgument)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PrunedTokensTotal.WithLabelValues("deleted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InflightInvocations))
}

// blockingSender holds every send until release is closed.
type blockingSender struct {
	mu      sync.Mutex
	active  int
	peak    int
	started chan struct{}
	release chan struct{}
}

func (s *blockingSender) SendMulticast(_ context.Context, tokens []string, _ notifications.NotificationEvent) ([]notifications.SendOutcome, error) {
	s.mu.Lock()
	s.active++
	s.peak = max(s.peak, s.active)
	s.mu.Unlock()

	s.started <- struct{}{}
	<-s.release

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	outcomes := make([]notifications.SendOutcome, len(tokens))
	for i, token := range tokens {
		outcomes[i] = notifications.SendOutcome{Token: token, Success: true}
	}
	return outcomes, nil
}

func TestInvokeLimitsConcurrency(t *testing.T) {
	log := logger.Discard()
	store := &fakeStore{tokens: map[string][]string{"u1": {"t1"}}}
	sender := &blockingSender{started: make(chan struct{}, 8), release: make(chan struct{})}
	service := NewService(
		notifications.NewComposer(nil),
		notifications.NewDispatcher(store, sender, log),
		notifications.NewPruner(store, 1, log),
		nil,
		log,
		Options{Enabled: true, MaxConcurrentInvocations: 2},
	)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Invoke(context.Background(), ChangeEvent{
				ReportID: "R" + string(rune('0'+i)),
				After:    ReportSnapshot{Status: "resolved", UID: "u1"},
			})
			assert.NoError(t, err)
		}()
	}

	<-sender.started
	<-sender.started
	select {
	case <-sender.started:
		t.Fatal("third invocation started while two were in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sender.release)
	wg.Wait()

	assert.Equal(t, 2, sender.peak)
}

func TestInvokeTimeout(t *testing.T) {
	log := logger.Discard()
	store := &fakeStore{tokens: map[string][]string{"u1": {"t1"}}}
	sender := &ctxSender{}
	service := NewService(
		notifications.NewComposer(nil),
		notifications.NewDispatcher(store, sender, log),
		notifications.NewPruner(store, 1, log),
		nil,
		log,
		Options{Enabled: true, MaxConcurrentInvocations: 1, InvocationTimeout: 20 * time.Millisecond},
	)

	outcome, err := service.Invoke(context.Background(), ChangeEvent{
		ReportID: "R1",
		After:    ReportSnapshot{Status: "resolved", UID: "u1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, outcome.State)
}

// ctxSender blocks until the invocation context ends.
type ctxSender struct{}

func (ctxSender) SendMulticast(ctx context.Context, _ []string, _ notifications.NotificationEvent) ([]notifications.SendOutcome, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
