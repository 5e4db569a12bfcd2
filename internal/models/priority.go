package models

import "fmt"

// Priority is the human-facing urgency label derived from a severity score.
type Priority string

const (
	PriorityLow       Priority = "Low"
	PriorityMedium    Priority = "Medium"
	PriorityHigh      Priority = "High"
	PriorityEmergency Priority = "Emergency"
)

var priorityRank = map[Priority]int{
	PriorityLow:       1,
	PriorityMedium:    2,
	PriorityHigh:      3,
	PriorityEmergency: 4,
}

// ParsePriority accepts one of Low, Medium, High or Emergency.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if _, ok := priorityRank[p]; !ok {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Rank orders priorities from 1 (Low) to 4 (Emergency). Unknown values rank 0.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// AtLeast reports whether p is as urgent as other or more.
func (p Priority) AtLeast(other Priority) bool {
	return p.Rank() >= other.Rank()
}
