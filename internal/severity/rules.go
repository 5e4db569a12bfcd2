package severity

import (
	"context"
	"fmt"

	"urban-issue-service/internal/models"
)

// baseSeverity is the starting level per issue type before modifiers.
var baseSeverity = [models.NumIssueTypes]int{
	models.IssueGarbage:      3,
	models.IssueNormal:       1,
	models.IssuePothole:      4,
	models.IssueWaterlogging: 5,
}

const (
	highConfidence = 0.9
	busyLocation   = 10
	nightStartHour = 22
	nightEndHour   = 5
)

// RuleModel scores severity with the labelling rules the severity model was
// trained on. It is deterministic and needs no model server.
type RuleModel struct{}

func (RuleModel) Predict(_ context.Context, v models.SeverityFeatureVector) (int, error) {
	it, err := models.IssueTypeFromIndex(int(v[models.FeatureIssueIndex]))
	if err != nil {
		return 0, fmt.Errorf("rule model: %w", err)
	}

	severity := baseSeverity[it]
	if v[models.FeatureConfidence] > highConfidence {
		severity++
	}
	if v[models.FeatureLocationFrequency] > busyLocation {
		severity++
	}
	if hour := int(v[models.FeatureHour]); hour >= nightStartHour || hour <= nightEndHour {
		severity++
	}
	return min(severity, models.MaxSeverity), nil
}
