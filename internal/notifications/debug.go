package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"golang.org/x/oauth2/google"
)

// GenerateDebugCurl creates a curl command that replays a multicast message
// against the FCM v1 API for its first token. The v1 API has no multicast
// endpoint, so the command covers a single device.
func GenerateDebugCurl(ctx context.Context, credJSON string, projectID string, message *messaging.MulticastMessage) string {
	if message == nil || len(message.Tokens) == 0 {
		return "# ERROR: message has no tokens"
	}

	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credJSON),
		"https://www.googleapis.com/auth/firebase.messaging",
	)
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to parse credentials: %v", err)
	}

	token, err := creds.TokenSource.Token()
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to get OAuth token: %v", err)
	}

	payloadJSON, err := json.Marshal(debugPayload(message))
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to marshal payload: %v", err)
	}

	return fmt.Sprintf(`curl -X POST \
  'https://fcm.googleapis.com/v1/projects/%s/messages:send' \
  -H 'Authorization: Bearer %s' \
  -H 'Content-Type: application/json' \
  -d %s`,
		projectID,
		token.AccessToken,
		shellQuote(string(payloadJSON)))
}

// shellQuote wraps s in single quotes for a POSIX shell, writing each embedded
// quote as '\''.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// debugPayload renders the v1 send body for the first token of message.
func debugPayload(message *messaging.MulticastMessage) map[string]any {
	msg := map[string]any{
		"token": message.Tokens[0],
		"data":  message.Data,
	}

	if message.Notification != nil {
		msg["notification"] = map[string]any{
			"title": message.Notification.Title,
			"body":  message.Notification.Body,
		}
	}

	if message.Android != nil {
		android := map[string]any{
			"collapse_key": message.Android.CollapseKey,
			"priority":     message.Android.Priority,
		}
		if n := message.Android.Notification; n != nil {
			android["notification"] = map[string]any{
				"channel_id": n.ChannelID,
				"tag":        n.Tag,
			}
		}
		msg["android"] = android
	}

	if message.APNS != nil {
		apns := map[string]any{"headers": message.APNS.Headers}
		if p := message.APNS.Payload; p != nil && p.Aps != nil {
			apns["payload"] = map[string]any{
				"aps": map[string]any{"sound": p.Aps.Sound},
			}
		}
		msg["apns"] = apns
	}

	return map[string]any{"message": msg}
}
