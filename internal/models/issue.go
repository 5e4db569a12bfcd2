package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// IssueStatus tracks an issue through resolution.
type IssueStatus string

const (
	StatusReported   IssueStatus = "Reported"
	StatusInProgress IssueStatus = "In Progress"
	StatusResolved   IssueStatus = "Resolved"
)

// ParseIssueStatus accepts the three lifecycle states.
func ParseIssueStatus(s string) (IssueStatus, error) {
	switch st := IssueStatus(s); st {
	case StatusReported, StatusInProgress, StatusResolved:
		return st, nil
	}
	return "", NewValidationError("status", "unknown status %q", s)
}

// Issue is a citizen report as stored in the database.
type Issue struct {
	ID          uuid.UUID   `json:"id"`
	UserID      *uuid.UUID  `json:"user_id,omitempty"`
	Description string      `json:"description"`
	ImagePath   string      `json:"image_path"`
	Status      IssueStatus `json:"status"`
	Latitude    float64     `json:"lat"`
	Longitude   float64     `json:"lng"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	Prediction  *Prediction `json:"prediction,omitempty"`
}

// Prediction is the triage outcome attached to an Issue.
type Prediction struct {
	ID         uuid.UUID `json:"id"`
	IssueID    uuid.UUID `json:"issue_id"`
	IssueType  IssueType `json:"issue_type"`
	Confidence float64   `json:"confidence"`
	Severity   int       `json:"severity"`
	Priority   Priority  `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResolutionLog records every status change made by an operator.
type ResolutionLog struct {
	ID        uuid.UUID   `json:"id"`
	IssueID   uuid.UUID   `json:"issue_id"`
	AdminID   *uuid.UUID  `json:"admin_id,omitempty"`
	Status    IssueStatus `json:"status"`
	Remarks   string      `json:"remarks"`
	CreatedAt time.Time   `json:"created_at"`
}

// StatusUpdate is the body of a status change request.
type StatusUpdate struct {
	Status  string `json:"status" binding:"required"`
	Remarks string `json:"remarks"`
}

// ValidateCoordinates checks WGS84 degree ranges.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewValidationError("lat", "%v outside [-90,90]", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return NewValidationError("lng", "%v outside [-180,180]", lng)
	}
	return nil
}

// Summary is the aggregate view served to administrators.
type Summary struct {
	TotalIssues            int     `json:"total_issues"`
	ActiveIssues           int     `json:"active_issues"`
	ResolvedIssues         int     `json:"resolved_issues"`
	EmergencyPending       int     `json:"emergency_pending"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
}

// MonthlyCount is one row of the monthly breakdown.
type MonthlyCount struct {
	Year            int `json:"year"`
	Month           int `json:"month"`
	ReportedCount   int `json:"reported_count"`
	InProgressCount int `json:"in_progress_count"`
	ResolvedCount   int `json:"resolved_count"`
	TotalCount      int `json:"total_count"`
}
