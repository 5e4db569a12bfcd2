package hotspot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

// ErrClustering marks a batch that could not be clustered: bad point data,
// an oversized batch, or a computation that ran past its deadline.
var ErrClustering = errors.New("clustering failed")

// Config tunes the clustering service.
type Config struct {
	// Eps is the neighbourhood radius in raw degrees (~200m at 0.002 near the
	// equator, shrinking in longitude towards the poles).
	Eps        float64
	MinSamples int
	// Batches smaller than MinPoints yield no clusters.
	MinPoints int
	MaxPoints int
	Timeout   time.Duration
}

// DefaultConfig matches the parameters the hotspot map was tuned with.
func DefaultConfig() Config {
	return Config{
		Eps:        0.002,
		MinSamples: 3,
		MinPoints:  5,
		MaxPoints:  10000,
		Timeout:    5 * time.Second,
	}
}

// Service groups geolocated reports into dense clusters. It is stateless and
// safe for concurrent use.
type Service struct {
	cfg    Config
	logger *logging.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config, logger *logging.Logger) (*Service, error) {
	if cfg.Eps <= 0 {
		return nil, fmt.Errorf("eps must be positive, got %v", cfg.Eps)
	}
	if cfg.MinSamples < 1 {
		return nil, fmt.Errorf("min samples must be at least 1, got %d", cfg.MinSamples)
	}
	if cfg.MaxPoints > 0 && cfg.MaxPoints < cfg.MinPoints {
		return nil, fmt.Errorf("max points %d below min points %d", cfg.MaxPoints, cfg.MinPoints)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// Cluster runs DBSCAN over the reports' coordinates and returns the clusters in
// ascending id order. Noise points are dropped. A batch below MinPoints returns
// an empty, non-nil slice.
func (s *Service) Cluster(ctx context.Context, reports []models.IssueReport) ([]models.Cluster, error) {
	if len(reports) < s.cfg.MinPoints {
		return []models.Cluster{}, nil
	}
	if s.cfg.MaxPoints > 0 && len(reports) > s.cfg.MaxPoints {
		return nil, fmt.Errorf("%w: %d points exceeds limit of %d", ErrClustering, len(reports), s.cfg.MaxPoints)
	}

	points := make([][2]float64, len(reports))
	for i, r := range reports {
		if err := models.ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
			return nil, fmt.Errorf("%w: point %d: %w", ErrClustering, i, err)
		}
		if !models.SeverityScore(r.Severity).Valid() {
			return nil, fmt.Errorf("%w: point %d: severity %d outside [%d,%d]",
				ErrClustering, i, r.Severity, models.MinSeverity, models.MaxSeverity)
		}
		points[i] = [2]float64{r.Latitude, r.Longitude}
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	labels, err := dbscan(ctx, points, s.cfg.Eps, s.cfg.MinSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClustering, err)
	}

	clusters := build(reports, labels)
	s.logger.Debugf("Clustered %d points into %d hotspots in %s", len(reports), len(clusters), time.Since(start))
	return clusters, nil
}

// build gathers members per label. labels[i] belongs to reports[i].
func build(reports []models.IssueReport, labels []int) []models.Cluster {
	n := 0
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	clusters := make([]models.Cluster, n)
	sums := make([]int, n)
	for i, l := range labels {
		if l == noise {
			continue
		}
		r := reports[i]
		c := &clusters[l]
		c.Points = append(c.Points, [2]float64{r.Latitude, r.Longitude})
		c.Centroid[0] += r.Latitude
		c.Centroid[1] += r.Longitude
		sums[l] += r.Severity
	}
	for l := range clusters {
		c := &clusters[l]
		c.Count = len(c.Points)
		c.AverageSeverity = float64(sums[l]) / float64(c.Count)
		c.Centroid[0] /= float64(c.Count)
		c.Centroid[1] /= float64(c.Count)
	}
	return clusters
}
