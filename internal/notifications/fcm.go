package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/eternisai/report-notifier/internal/logger"
)

// FCM error codes reported in SendOutcome.ErrorCode. They follow the names the
// Firebase Admin SDKs use, without the "messaging/" prefix.
const (
	CodeUnregistered     = "registration-token-not-registered"
	CodeInvalidArgument  = "invalid-argument"
	CodeQuotaExceeded    = "message-rate-exceeded"
	CodeUnavailable      = "server-unavailable"
	CodeInternal         = "internal-error"
	CodeSenderIDMismatch = "mismatched-credential"
	CodeThirdPartyAuth   = "third-party-auth-error"
	CodeUnknown          = "unknown-error"
	CodeMissingResponse  = "missing-response"
)

// multicastClient is the part of *messaging.Client the sender uses.
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// DebugCurlConfig enables logging a replayable curl command for failed sends.
type DebugCurlConfig struct {
	Enabled   bool
	ProjectID string
	CredJSON  string
}

// FCMSender sends notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client    multicastClient
	logger    *logger.Logger
	debugCurl DebugCurlConfig
}

// NewFCMSender creates a sender around a messaging client.
func NewFCMSender(client *messaging.Client, logger *logger.Logger, debugCurl DebugCurlConfig) *FCMSender {
	return newFCMSender(client, logger, debugCurl)
}

func newFCMSender(client multicastClient, logger *logger.Logger, debugCurl DebugCurlConfig) *FCMSender {
	return &FCMSender{
		client:    client,
		logger:    logger.WithComponent("fcm-sender"),
		debugCurl: debugCurl,
	}
}

// SendMulticast sends event to all tokens in one SendEachForMulticast call.
// An error means the whole batch failed and no per-token outcome is known.
func (s *FCMSender) SendMulticast(ctx context.Context, tokens []string, event NotificationEvent) ([]SendOutcome, error) {
	log := s.logger.WithContext(ctx)
	message := BuildMulticastMessage(tokens, event)

	resp, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		if s.debugCurl.Enabled {
			log.Debug("replay failed FCM request",
				slog.String("curl", GenerateDebugCurl(ctx, s.debugCurl.CredJSON, s.debugCurl.ProjectID, message)))
		}
		return nil, fmt.Errorf("fcm multicast send: %w", err)
	}

	outcomes := make([]SendOutcome, len(tokens))
	for i, token := range tokens {
		outcomes[i] = SendOutcome{Token: token, ErrorCode: CodeMissingResponse}
		if i >= len(resp.Responses) || resp.Responses[i] == nil {
			continue
		}

		r := resp.Responses[i]
		outcomes[i] = SendOutcome{
			Token:     token,
			Success:   r.Success,
			MessageID: r.MessageID,
		}
		if !r.Success {
			outcomes[i].ErrorCode = ErrorCode(r.Error)
		}
	}

	log.Info("fcm multicast sent",
		slog.String("notif_id", event.NotifID),
		slog.Int("success_count", resp.SuccessCount),
		slog.Int("failure_count", resp.FailureCount))

	return outcomes, nil
}

// BuildMulticastMessage maps a notification event onto the FCM multicast payload.
// notifId doubles as Android collapse key and tag and as the APNs collapse ID.
func BuildMulticastMessage(tokens []string, event NotificationEvent) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Body,
		},
		Data: event.Data(),
		Android: &messaging.AndroidConfig{
			CollapseKey: event.NotifID,
			Priority:    AndroidPriority,
			Notification: &messaging.AndroidNotification{
				ChannelID: AndroidChannelID,
				Tag:       event.NotifID,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				APNSCollapseHeader: event.NotifID,
				APNSPriorityHeader: APNSPriority,
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: APNSSound,
				},
			},
		},
	}
}

// ErrorCode maps a per-token FCM error onto one of the Code constants.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return CodeUnregistered
	case messaging.IsInvalidArgument(err):
		return CodeInvalidArgument
	case messaging.IsQuotaExceeded(err):
		return CodeQuotaExceeded
	case messaging.IsUnavailable(err):
		return CodeUnavailable
	case messaging.IsInternal(err):
		return CodeInternal
	case messaging.IsSenderIDMismatch(err):
		return CodeSenderIDMismatch
	case messaging.IsThirdPartyAuthError(err):
		return CodeThirdPartyAuth
	default:
		return CodeUnknown
	}
}
