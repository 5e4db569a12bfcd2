package severity

import "urban-issue-service/internal/models"

// ToPriority maps a severity score to a priority label. It is total over all
// integers: values below 1 fall into Low and values above 5 into Emergency.
// Range checking of model output happens in the Adapter, not here.
func ToPriority(severity int) models.Priority {
	switch {
	case severity <= 2:
		return models.PriorityLow
	case severity == 3:
		return models.PriorityMedium
	case severity == 4:
		return models.PriorityHigh
	default:
		return models.PriorityEmergency
	}
}
