package reports

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eternisai/report-notifier/internal/notifications"
)

// ReportSnapshot is the part of a report document the notifier reads.
type ReportSnapshot struct {
	Status       string `json:"status" firestore:"status"`
	UID          string `json:"uid,omitempty" firestore:"uid"`
	ServiceType  string `json:"serviceType,omitempty" firestore:"serviceType"`
	PlatformName string `json:"platformName,omitempty" firestore:"platformName"`
}

// Fields converts the snapshot to composer input.
func (r ReportSnapshot) Fields() notifications.ReportFields {
	return notifications.ReportFields{
		UID:          r.UID,
		ServiceType:  r.ServiceType,
		PlatformName: r.PlatformName,
	}
}

// ChangeEvent describes one write to a report document.
type ChangeEvent struct {
	ReportID string         `json:"reportId"`
	Before   ReportSnapshot `json:"before"`
	After    ReportSnapshot `json:"after"`
}

// ErrInvalidEvent is returned for events that cannot be turned into a
// notification no matter how often they are redelivered.
var ErrInvalidEvent = errors.New("invalid change event")

// Field limits keep the composed FCM message well below its 4096 byte payload
// limit. An oversized payload is rejected per token with invalid-argument,
// which would otherwise prune every token the user has.
const (
	MaxReportIDLength = 256
	MaxUIDLength      = 128
	MaxStatusLength   = 128
	MaxLabelLength    = 256
)

// Validate checks the report identifier and the fields that end up in the
// notification payload or in a Firestore path.
func (e ChangeEvent) Validate() error {
	if strings.TrimSpace(e.ReportID) == "" {
		return fmt.Errorf("%w: reportId is required", ErrInvalidEvent)
	}
	if strings.Contains(e.ReportID, "/") {
		return fmt.Errorf("%w: reportId %q must not contain '/'", ErrInvalidEvent, e.ReportID)
	}
	if len(e.ReportID) > MaxReportIDLength {
		return fmt.Errorf("%w: reportId exceeds %d bytes", ErrInvalidEvent, MaxReportIDLength)
	}
	if e.After.UID != "" && !ValidUID(e.After.UID) {
		return fmt.Errorf("%w: uid %q is not a valid user id", ErrInvalidEvent, e.After.UID)
	}
	if len(e.After.Status) > MaxStatusLength {
		return fmt.Errorf("%w: status exceeds %d bytes", ErrInvalidEvent, MaxStatusLength)
	}
	if len(e.After.ServiceType) > MaxLabelLength || len(e.After.PlatformName) > MaxLabelLength {
		return fmt.Errorf("%w: serviceType and platformName are limited to %d bytes", ErrInvalidEvent, MaxLabelLength)
	}
	return nil
}

// ValidUID reports whether uid can address a user's token collection.
func ValidUID(uid string) bool {
	return uid != "" && len(uid) <= MaxUIDLength && !strings.Contains(uid, "/")
}

// State is where an invocation ended.
type State string

const (
	StateSkippedNoChange    State = "skipped_no_change"
	StateSkippedEmptyStatus State = "skipped_empty_status"
	StateSkippedNoUser      State = "skipped_no_user"
	StateDisabled           State = "disabled"
	StateNoTokens           State = "no_tokens"
	StatePruned             State = "pruned"
	StateFailed             State = "failed"
)

// Skipped reports whether the invocation ended before composing a notification.
func (s State) Skipped() bool {
	switch s {
	case StateSkippedNoChange, StateSkippedEmptyStatus, StateSkippedNoUser:
		return true
	default:
		return false
	}
}

// Outcome summarizes one handled change event.
type Outcome struct {
	ReportID string `json:"reportId"`
	State    State  `json:"state"`
	NotifID  string `json:"notifId,omitempty"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Pruned   int    `json:"pruned"`

	Event      *notifications.NotificationEvent `json:"-"`
	Deliveries []notifications.SendOutcome      `json:"-"`
	Prune      notifications.PruneResult        `json:"-"`
}
