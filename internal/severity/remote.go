package severity

import (
	"bytes"
	"context"
	"encoding/json"
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

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// RemoteModel calls a severity model server over HTTP.
type RemoteModel struct {
	baseURL string
	client  *http.Client
	retries int
	logger  *logging.Logger
}

// NewRemoteModel returns a client for the model server at baseURL.
func NewRemoteModel(baseURL string, timeout time.Duration, retries int, logger *logging.Logger) *RemoteModel {
	return &RemoteModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		logger:  logger,
	}
}

// Ready checks the server's health endpoint.
func (m *RemoteModel) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: severity model health check: %w", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: severity model health returned status %s", ErrModelUnavailable, resp.Status)
	}
	return nil
}

// Predict sends one feature vector and returns the predicted class.
func (m *RemoteModel) Predict(ctx context.Context, v models.SeverityFeatureVector) (int, error) {
	payload, err := json.Marshal(predictRequest{Instances: [][]float64{v[:]}})
	if err != nil {
		return 0, err
	}

	var out predictResponse
	err = utils.Retry(ctx, m.logger, m.retries+1, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			return utils.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("severity model returned status: %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return utils.Permanent(fmt.Errorf("severity model returned status %s: %s", resp.Status, body))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return utils.Permanent(fmt.Errorf("decode severity response: %w", err))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("%w: expected 1 prediction, got %d", ErrModelUnavailable, len(out.Predictions))
	}
	p := out.Predictions[0]
	if math.IsNaN(p) || p != math.Trunc(p) {
		return 0, fmt.Errorf("%w: non-integral severity %v", ErrModelUnavailable, p)
	}
	return int(p), nil
}
