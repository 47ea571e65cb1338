package events

import "testing"

func TestAttemptSubject(t *testing.T) {
	tests := []struct {
		name      string
		attemptID string
		eventType string
		want      string
	}{
		{"created", "a1", AttemptCreated, "attempt.a1.created"},
		{"process started", "a1", ProcessStarted, "attempt.a1.process_started"},
		{"process completed", "b2", ProcessCompleted, "attempt.b2.process_completed"},
		{"process failed", "b2", ProcessFailed, "attempt.b2.process_failed"},
		{"process killed", "c3", ProcessKilled, "attempt.c3.process_killed"},
		{"activity", "c3", AttemptActivity, "attempt.c3.activity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttemptSubject(tt.attemptID, tt.eventType); got != tt.want {
				t.Errorf("AttemptSubject(%q, %q) = %q, want %q", tt.attemptID, tt.eventType, got, tt.want)
			}
		})
	}
}
