package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
	"urban-issue-service/internal/utils"
)

// Classifier labels a preprocessed image.
type Classifier interface {
	Classify(ctx context.Context, img Image) (models.Classification, error)
}

type classifyResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// RemoteClassifier calls the image model server over HTTP.
type RemoteClassifier struct {
	baseURL string
	client  *http.Client
	retries int
	logger  *logging.Logger
}

// NewRemoteClassifier returns a client for the classifier at baseURL.
func NewRemoteClassifier(baseURL string, timeout time.Duration, retries int, logger *logging.Logger) *RemoteClassifier {
	return &RemoteClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		logger:  logger,
	}
}

// Ready checks the server's health endpoint.
func (c *RemoteClassifier) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: classifier health check: %w", models.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: classifier health returned status %s", models.ErrModelUnavailable, resp.Status)
	}
	return nil
}

// Classify uploads the image and picks the most probable class.
func (c *RemoteClassifier) Classify(ctx context.Context, img Image) (models.Classification, error) {
	var out classifyResponse
	err := utils.Retry(ctx, c.logger, c.retries+1, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(img.Data))
		if err != nil {
			return utils.Permanent(err)
		}
		req.Header.Set("Content-Type", img.MIME)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusUnsupportedMediaType:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return utils.Permanent(fmt.Errorf("%w: classifier rejected image: %s", ErrImagePreprocessing, body))
		case resp.StatusCode >= 500:
			return fmt.Errorf("classifier returned status: %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			return utils.Permanent(fmt.Errorf("classifier returned status: %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return utils.Permanent(fmt.Errorf("decode classifier response: %w", err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrImagePreprocessing) {
			return models.Classification{}, err
		}
		return models.Classification{}, fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	return argmax(out.Probabilities)
}

// argmax returns the first index holding the highest probability.
func argmax(probs []float64) (models.Classification, error) {
	if len(probs) != models.NumIssueTypes {
		return models.Classification{}, fmt.Errorf("%w: expected %d probabilities, got %d",
			models.ErrModelUnavailable, models.NumIssueTypes, len(probs))
	}
	best := 0
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return models.Classification{}, fmt.Errorf("%w: probability %v at %d outside [0,1]", models.ErrModelUnavailable, p, i)
		}
		if p > probs[best] {
			best = i
		}
	}
	it, err := models.IssueTypeFromIndex(best)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	return models.Classification{Type: it, Confidence: probs[best]}, nil
}
