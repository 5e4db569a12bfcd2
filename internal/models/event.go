package models

import (
	"time"

	"github.com/google/uuid"
)

// TriageEvent is published whenever an image has been triaged. It is the
// message carried on the Kafka topic and the unit of work of the alert pool.
type TriageEvent struct {
	EventID    string    `json:"event_id"`
	IssueID    string    `json:"issue_id,omitempty"`
	IssueType  IssueType `json:"issue_type"`
	Confidence float64   `json:"confidence"`
	Severity   int       `json:"severity"`
	Priority   Priority  `json:"priority"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lng,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTriageEvent stamps a fresh event ID.
func NewTriageEvent(issueID string, t IssueType, confidence float64, severity int, p Priority, at time.Time) TriageEvent {
	return TriageEvent{
		EventID:    uuid.NewString(),
		IssueID:    issueID,
		IssueType:  t,
		Confidence: confidence,
		Severity:   severity,
		Priority:   p,
		Timestamp:  at,
	}
}

// WithLocation attaches coordinates to the event.
func (e TriageEvent) WithLocation(lat, lng float64) TriageEvent {
	e.Latitude = &lat
	e.Longitude = &lng
	return e
}
