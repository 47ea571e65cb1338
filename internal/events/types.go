// Package events defines the bus subjects and event types for the
// attempt lifecycle event stream.
package events

import "strings"

// Event types for task attempts. The matching bus subject scopes the
// type to one attempt: attempt.<attempt_id>.<suffix>.
const (
	AttemptCreated   = "attempt.created"
	ProcessStarted   = "attempt.process_started"
	ProcessCompleted = "attempt.process_completed"
	ProcessFailed    = "attempt.process_failed"
	ProcessKilled    = "attempt.process_killed"
	AttemptActivity  = "attempt.activity"
)

// AttemptStream matches every event of every attempt.
const AttemptStream = "attempt.>"

// AnalyticsEvent is the subject tracked analytics events are published on.
const AnalyticsEvent = "analytics.event"

// AttemptSubject returns the bus subject for an attempt event type,
// e.g. ("a1", AttemptCreated) -> "attempt.a1.created".
func AttemptSubject(attemptID, eventType string) string {
	return "attempt." + attemptID + "." + strings.TrimPrefix(eventType, "attempt.")
}
