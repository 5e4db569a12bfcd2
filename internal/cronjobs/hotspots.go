package cronjobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

// ReportSource lists unresolved reports created since a given time.
type ReportSource interface {
	OpenIssueReports(ctx context.Context, since time.Time) ([]models.IssueReport, error)
}

// Clusterer is satisfied by *hotspot.Service.
type Clusterer interface {
	Cluster(ctx context.Context, reports []models.IssueReport) ([]models.Cluster, error)
}

// HotspotCache keeps the latest hotspots over stored issues.
type HotspotCache struct {
	source    ReportSource
	clusterer Clusterer
	lookback  time.Duration
	logger    *logging.Logger
	now       func() time.Time

	mu        sync.RWMutex
	hotspots  []models.HotspotSummary
	refreshed time.Time
}

func NewHotspotCache(source ReportSource, clusterer Clusterer, lookback time.Duration, logger *logging.Logger) *HotspotCache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HotspotCache{
		source:    source,
		clusterer: clusterer,
		lookback:  lookback,
		logger:    logger,
		now:       time.Now,
	}
}

// Refresh reclusters the open issues in the lookback window.
func (h *HotspotCache) Refresh(ctx context.Context) error {
	now := h.now()
	reports, err := h.source.OpenIssueReports(ctx, now.Add(-h.lookback))
	if err != nil {
		return fmt.Errorf("load open issues: %w", err)
	}
	clusters, err := h.clusterer.Cluster(ctx, reports)
	if err != nil {
		return fmt.Errorf("cluster open issues: %w", err)
	}

	summaries := make([]models.HotspotSummary, len(clusters))
	for i, c := range clusters {
		summaries[i] = c.Summary()
	}

	h.mu.Lock()
	h.hotspots = summaries
	h.refreshed = now
	h.mu.Unlock()

	h.logger.Infof("Refreshed hotspots: %d clusters from %d open issues", len(summaries), len(reports))
	return nil
}

// Hotspots returns the cached hotspots, computing them on first use.
func (h *HotspotCache) Hotspots(ctx context.Context) ([]models.HotspotSummary, time.Time, error) {
	h.mu.RLock()
	hs, at := h.hotspots, h.refreshed
	h.mu.RUnlock()
	if !at.IsZero() {
		return hs, at, nil
	}

	if err := h.Refresh(ctx); err != nil {
		return nil, time.Time{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hotspots, h.refreshed, nil
}

// Scheduler runs the periodic jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// NewScheduler registers the hotspot refresh on spec (standard five-field
// cron syntax or descriptors such as "@every 5m").
func NewScheduler(spec string, cache *HotspotCache, timeout time.Duration, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := cache.Refresh(ctx); err != nil {
			logger.Errorf("Hotspot refresh failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Infof("Cron scheduler started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Infof("Cron scheduler stopped")
}
