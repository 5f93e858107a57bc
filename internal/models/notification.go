// -----------------------------------------------------------------------
// Notification event types for the webhook side channel
// -----------------------------------------------------------------------

package models

// EventType identifies a webhook notification kind.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"
	EventUnitFailed   EventType = "unit_failed"
	EventAuthExpired  EventType = "auth_expired"
	EventError        EventType = "error"
	EventTest         EventType = "test"
)

// NotificationPayload is the free-form detail attached to an event.
type NotificationPayload map[string]interface{}
