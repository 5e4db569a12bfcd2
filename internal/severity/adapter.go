package severity

import (
	"context"
	"errors"
	"fmt"

	"urban-issue-service/internal/models"
)

// ErrModelUnavailable is models.ErrModelUnavailable, re-exported for callers
// that only deal with severity.
var ErrModelUnavailable = models.ErrModelUnavailable

// Model is a trained severity classifier. Implementations are loaded once and
// shared read-only across requests.
type Model interface {
	Predict(ctx context.Context, features models.SeverityFeatureVector) (int, error)
}

// Adapter validates inputs, builds the feature vector and checks the model's
// answer before it leaves the package.
type Adapter struct {
	model Model
}

// NewAdapter wraps a loaded model. A nil model fails immediately so process
// startup can abort.
func NewAdapter(model Model) (*Adapter, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: no severity model configured", ErrModelUnavailable)
	}
	return &Adapter{model: model}, nil
}

// PredictSeverity returns the severity for one triaged image. Each call is
// independent; no result is cached.
func (a *Adapter) PredictSeverity(ctx context.Context, c models.Classification, f models.ContextualFeatures) (models.SeverityScore, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}

	out, err := a.model.Predict(ctx, models.NewSeverityFeatureVector(c, f))
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	score := models.SeverityScore(out)
	if !score.Valid() {
		return 0, fmt.Errorf("%w: severity %d outside [%d,%d]", ErrModelUnavailable, out, models.MinSeverity, models.MaxSeverity)
	}
	return score, nil
}
