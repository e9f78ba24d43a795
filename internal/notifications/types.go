package notifications

import "context"

// Android and APNs delivery settings shared by every report notification.
const (
	AndroidChannelID   = "high_importance_channel"
	AndroidPriority    = "high"
	APNSPriority       = "10"
	APNSSound          = "default"
	APNSCollapseHeader = "apns-collapse-id"
	APNSPriorityHeader = "apns-priority"
)

// ReportFields are the report document fields the composer reads.
type ReportFields struct {
	UID          string
	ServiceType  string
	PlatformName string
}

// Label returns the display label for the report.
func (f ReportFields) Label() string {
	if f.ServiceType != "" {
		return f.ServiceType
	}
	if f.PlatformName != "" {
		return f.PlatformName
	}
	return "Update"
}

// NotificationEvent is a composed notification for one status transition.
// It is derived from the change and never persisted.
type NotificationEvent struct {
	ReportID  string
	StatusKey string
	UID       string
	Title     string
	Body      string
	Route     string
	NotifID   string
}

// Data returns the string-valued custom data map delivered with the notification.
func (e NotificationEvent) Data() map[string]string {
	return map[string]string{
		"notifId":  e.NotifID,
		"reportId": e.ReportID,
		"status":   e.StatusKey,
		"route":    e.Route,
	}
}

// SendOutcome is the provider's verdict for one token of a multicast send.
type SendOutcome struct {
	Token     string
	Success   bool
	MessageID string
	ErrorCode string
}

// TokenStore reads and deletes a user's registered device tokens.
type TokenStore interface {
	// ListTokens returns every token registered for uid. No tokens is not an error.
	ListTokens(ctx context.Context, uid string) ([]string, error)
	// DeleteToken removes one token. Deleting a missing token succeeds.
	DeleteToken(ctx context.Context, uid, token string) error
}

// Sender delivers one notification to many tokens in a single batched call.
// The returned outcomes are order-aligned with tokens.
type Sender interface {
	SendMulticast(ctx context.Context, tokens []string, event NotificationEvent) ([]SendOutcome, error)
}
