package notifications

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type multicastEmulator struct {
	t        *testing.T
	messages []*messaging.MulticastMessage
	errs     map[string]error
	err      error
}

func (e *multicastEmulator) SendEachForMulticast(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	e.messages = append(e.messages, message)
	if e.err != nil {
		return nil, e.err
	}

	resp := &messaging.BatchResponse{}
	for _, token := range message.Tokens {
		if err := e.errs[token]; err != nil {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "projects/p/messages/" + token})
	}
	return resp, nil
}

func TestBuildMulticastMessage(t *testing.T) {
	event := resolvedEvent(t)
	msg := BuildMulticastMessage([]string{"t1", "t2"}, event)

	assert.Equal(t, []string{"t1", "t2"}, msg.Tokens)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "Report resolved", msg.Notification.Title)
	assert.Equal(t, event.Body, msg.Notification.Body)
	assert.Equal(t, "report:R1:resolved", msg.Data["notifId"])
	assert.Equal(t, "/reports/R1", msg.Data["route"])

	require.NotNil(t, msg.Android)
	assert.Equal(t, "report:R1:resolved", msg.Android.CollapseKey)
	assert.Equal(t, "high", msg.Android.Priority)
	require.NotNil(t, msg.Android.Notification)
	assert.Equal(t, "high_importance_channel", msg.Android.Notification.ChannelID)
	assert.Equal(t, "report:R1:resolved", msg.Android.Notification.Tag)

	require.NotNil(t, msg.APNS)
	assert.Equal(t, "report:R1:resolved", msg.APNS.Headers["apns-collapse-id"])
	assert.Equal(t, "10", msg.APNS.Headers["apns-priority"])
	require.NotNil(t, msg.APNS.Payload)
	assert.Equal(t, "default", msg.APNS.Payload.Aps.Sound)
}

func TestFCMSenderMapsResponses(t *testing.T) {
	emu := &multicastEmulator{t: t, errs: map[string]error{"t2": errors.New("opaque failure")}}
	sender := newFCMSender(emu, logger.Discard(), DebugCurlConfig{})

	outcomes, err := sender.SendMulticast(context.Background(), []string{"t1", "t2"}, resolvedEvent(t))
	require.NoError(t, err)
	require.Len(t, emu.messages, 1)

	require.Len(t, outcomes, 2)
	assert.Equal(t, SendOutcome{Token: "t1", Success: true, MessageID: "projects/p/messages/t1"}, outcomes[0])
	assert.Equal(t, SendOutcome{Token: "t2", ErrorCode: CodeUnknown}, outcomes[1])
}

func TestFCMSenderWholesaleFailure(t *testing.T) {
	emu := &multicastEmulator{t: t, err: errors.New("connection refused")}
	sender := newFCMSender(emu, logger.Discard(), DebugCurlConfig{})

	outcomes, err := sender.SendMulticast(context.Background(), []string{"t1"}, resolvedEvent(t))
	assert.Error(t, err)
	assert.Nil(t, outcomes)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, CodeUnknown, ErrorCode(errors.New("boom")))
}

func TestDebugPayload(t *testing.T) {
	msg := BuildMulticastMessage([]string{"t1", "t2"}, resolvedEvent(t))
	payload := debugPayload(msg)

	inner, ok := payload["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", inner["token"])
	assert.Contains(t, inner, "android")
	assert.Contains(t, inner, "apns")
}

func TestGenerateDebugCurlWithoutTokens(t *testing.T) {
	out := GenerateDebugCurl(context.Background(), "", "p", &messaging.MulticastMessage{})
	assert.Equal(t, "# ERROR: message has no tokens", out)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":"b"}`, want: `'{"a":"b"}'`},
		{in: `Report "WiFi" isn't done`, want: `'Report "WiFi" isn'\''t done'`},
		{in: `''`, want: `''\'''\'''`},
		{in: "", want: "''"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in))
	}
}
