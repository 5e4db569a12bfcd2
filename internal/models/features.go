package models

import "math"

// Classification is the output contract of the image classifier.
type Classification struct {
	Type       IssueType
	Confidence float64
}

// Validate checks the label is known and confidence lies in [0, 1].
func (c Classification) Validate() error {
	if !c.Type.Valid() {
		return NewValidationError("issue_index", "%d is not a known issue type", int(c.Type))
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return NewValidationError("confidence", "%v outside [0,1]", c.Confidence)
	}
	return nil
}

// ContextualFeatures are the non-image signals that accompany a report.
type ContextualFeatures struct {
	HourOfDay         int `json:"hour_of_day"`
	LocationFrequency int `json:"location_freq"`
	DescriptionLength int `json:"description_length"`
}

// Validate rejects values that must never reach the severity model.
func (f ContextualFeatures) Validate() error {
	if f.HourOfDay < 0 || f.HourOfDay > 23 {
		return NewValidationError("hour", "%d outside [0,23]", f.HourOfDay)
	}
	if f.LocationFrequency < 0 {
		return NewValidationError("location_freq", "must be non-negative, got %d", f.LocationFrequency)
	}
	if f.DescriptionLength < 0 {
		return NewValidationError("description_length", "must be non-negative, got %d", f.DescriptionLength)
	}
	return nil
}

// Positions inside SeverityFeatureVector. The order is part of the contract
// with the trained severity model and must not change without retraining.
const (
	FeatureIssueIndex = iota
	FeatureConfidence
	FeatureHour
	FeatureLocationFrequency
	FeatureDescriptionLength
	NumSeverityFeatures
)

// SeverityFeatureVector is the fixed-order input of the severity model.
type SeverityFeatureVector [NumSeverityFeatures]float64

// NewSeverityFeatureVector lays out the features in contract order.
func NewSeverityFeatureVector(c Classification, f ContextualFeatures) SeverityFeatureVector {
	var v SeverityFeatureVector
	v[FeatureIssueIndex] = float64(c.Type.Index())
	v[FeatureConfidence] = c.Confidence
	v[FeatureHour] = float64(f.HourOfDay)
	v[FeatureLocationFrequency] = float64(f.LocationFrequency)
	v[FeatureDescriptionLength] = float64(f.DescriptionLength)
	return v
}

// MinSeverity and MaxSeverity bound a SeverityScore.
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// SeverityScore is an urgency level in [1, 5].
type SeverityScore int

func (s SeverityScore) Valid() bool {
	return s >= MinSeverity && s <= MaxSeverity
}
