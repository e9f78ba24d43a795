package reports

import (
	"testing"

	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATSSubscriberWithoutConnection(t *testing.T) {
	assert.Nil(t, NewNATSSubscriber(nil, "reports.status.changed", "report-notifier", &recordingInvoker{}, logger.Discard()))
}

func TestNATSProcessInvokesWithDecodedEvent(t *testing.T) {
	invoker := &recordingInvoker{outcome: Outcome{State: StatePruned}}
	sub := &NATSSubscriber{invoker: invoker, logger: logger.Discard()}

	sub.process(&nats.Msg{
		Subject: "reports.status.changed",
		Data:    []byte(`{"reportId":"R1","before":{"status":"on process"},"after":{"status":"resolved","uid":"u1"}}`),
	})

	require.Len(t, invoker.events, 1)
	event := invoker.events[0]
	assert.Equal(t, "R1", event.ReportID)
	assert.Equal(t, "on process", event.Before.Status)
	assert.Equal(t, "resolved", event.After.Status)
	assert.Equal(t, "u1", event.After.UID)
}

func TestNATSProcessDropsMalformedEvent(t *testing.T) {
	invoker := &recordingInvoker{}
	sub := &NATSSubscriber{invoker: invoker, logger: logger.Discard()}

	sub.handleMessage(&nats.Msg{Subject: "reports.status.changed", Data: []byte(`not json`)})
	sub.inflight.Wait()

	assert.Empty(t, invoker.events)
}
