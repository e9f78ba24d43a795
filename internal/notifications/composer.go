package notifications

import (
	"fmt"
	"strings"
)

// Template is a title/body pair. Both may contain {reportId}, {status} and {label}.
type Template struct {
	Title string
	Body  string
}

var builtinTemplates = map[string]Template{
	"onprocess": {
		Title: "Your report is being processed",
		Body:  `Report "{label}" is now in progress.`,
	},
	"resolved": {
		Title: "Report resolved",
		Body:  "A fix was submitted for your report. Please review & approve.",
	},
}

var fallbackTemplate = Template{
	Title: "Report updated",
	Body:  "Report {reportId} is now {status}",
}

// NormalizeStatus case-folds and trims a status value.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// StatusKey normalizes status and removes all whitespace, so "On Process" and
// "onprocess" share the key "onprocess".
func StatusKey(status string) string {
	return strings.Join(strings.Fields(NormalizeStatus(status)), "")
}

// NotificationID is the collapse identifier for a report reaching a status.
func NotificationID(reportID, statusKey string) string {
	return fmt.Sprintf("report:%s:%s", reportID, statusKey)
}

// ReportRoute is the in-app deep link for a report.
func ReportRoute(reportID string) string {
	return "/reports/" + reportID
}

// Composer turns status transitions into notification events.
type Composer struct {
	templates map[string]Template
}

// NewComposer creates a composer. overrides are keyed by status in any
// spelling and take precedence over the built-in texts.
func NewComposer(overrides map[string]Template) *Composer {
	templates := make(map[string]Template, len(builtinTemplates)+len(overrides))
	for key, tmpl := range builtinTemplates {
		templates[key] = tmpl
	}
	for status, tmpl := range overrides {
		templates[StatusKey(status)] = tmpl
	}

	return &Composer{templates: templates}
}

// Compose builds the notification for a transition from previous to next.
// ok is false when there is nothing to notify: the status keys are equal or
// next is empty.
func (c *Composer) Compose(previous, next string, fields ReportFields, reportID string) (event NotificationEvent, ok bool) {
	nextKey := StatusKey(next)
	if nextKey == "" || StatusKey(previous) == nextKey {
		return NotificationEvent{}, false
	}

	tmpl, found := c.templates[nextKey]
	if !found {
		tmpl = fallbackTemplate
	}

	render := strings.NewReplacer(
		"{reportId}", reportID,
		"{status}", NormalizeStatus(next),
		"{label}", fields.Label(),
	)

	notifID := NotificationID(reportID, nextKey)

	return NotificationEvent{
		ReportID:  reportID,
		StatusKey: nextKey,
		UID:       fields.UID,
		Title:     render.Replace(tmpl.Title),
		Body:      render.Replace(tmpl.Body),
		Route:     ReportRoute(reportID),
		NotifID:   notifID,
	}, true
}
