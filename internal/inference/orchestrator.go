package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"urban-issue-service/internal/classifier"
	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
	"urban-issue-service/internal/severity"
)

// Clock supplies the hour of day when a request does not carry one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// SeverityPredictor is satisfied by *severity.Adapter.
type SeverityPredictor interface {
	PredictSeverity(ctx context.Context, c models.Classification, f models.ContextualFeatures) (models.SeverityScore, error)
}

// Request is one image plus its contextual signals. DescriptionLength and
// LocationFreq are required; Hour defaults to the orchestrator's clock.
type Request struct {
	Image             []byte
	DescriptionLength *int
	LocationFreq      *int
	Hour              *int
}

// Result is the triage outcome returned to callers.
type Result struct {
	IssueType  models.IssueType `json:"issue_type"`
	IssueIndex int              `json:"issue_index"`
	Confidence float64          `json:"confidence"`
	Severity   int              `json:"severity"`
	Priority   models.Priority  `json:"priority"`
}

// Orchestrator chains image classification, severity prediction and
// priority mapping. It holds no per-request state.
type Orchestrator struct {
	classifier classifier.Classifier
	severity   SeverityPredictor
	clock      Clock
	logger     *logging.Logger
}

// New wires an Orchestrator. A nil clock means SystemClock in local time.
func New(cls classifier.Classifier, sev SeverityPredictor, clock Clock, logger *logging.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{classifier: cls, severity: sev, clock: clock, logger: logger}
}

// Infer triages one image.
func (o *Orchestrator) Infer(ctx context.Context, req Request) (Result, error) {
	if req.DescriptionLength == nil {
		return Result{}, models.NewValidationError("description_length", "is required")
	}
	if req.LocationFreq == nil {
		return Result{}, models.NewValidationError("location_freq", "is required")
	}
	features := models.ContextualFeatures{
		LocationFrequency: *req.LocationFreq,
		DescriptionLength: *req.DescriptionLength,
	}
	if req.Hour != nil {
		features.HourOfDay = *req.Hour
	} else {
		features.HourOfDay = o.clock.Now().Hour()
	}
	if err := features.Validate(); err != nil {
		return Result{}, err
	}

	img, err := classifier.Preprocess(req.Image)
	if err != nil {
		return Result{}, err
	}

	cls, err := o.classifier.Classify(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("classify image: %w", err)
	}

	score, err := o.severity.PredictSeverity(ctx, cls, features)
	if err != nil {
		return Result{}, fmt.Errorf("predict severity: %w", err)
	}

	res := Result{
		IssueType:  cls.Type,
		IssueIndex: cls.Type.Index(),
		Confidence: RoundConfidence(cls.Confidence),
		Severity:   int(score),
		Priority:   severity.ToPriority(int(score)),
	}
	o.logger.Debugf("Triaged %s (%.3f) hour=%d freq=%d desc=%d -> severity %d %s",
		res.IssueType, res.Confidence, features.HourOfDay, features.LocationFrequency,
		features.DescriptionLength, res.Severity, res.Priority)
	return res, nil
}

// RoundConfidence rounds to three decimal places.
func RoundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}
