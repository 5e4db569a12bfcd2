package hotspot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"urban-issue-service/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s
}

func twoGroups() []models.IssueReport {
	return []models.IssueReport{
		{Latitude: 12.9000, Longitude: 77.5900, Severity: 3},
		{Latitude: 13.0500, Longitude: 77.7000, Severity: 1},
		{Latitude: 12.9005, Longitude: 77.5902, Severity: 4},
		{Latitude: 13.0504, Longitude: 77.7003, Severity: 2},
		{Latitude: 12.9003, Longitude: 77.5898, Severity: 5},
		{Latitude: 13.0501, Longitude: 77.6998, Severity: 2},
	}
}

func TestCluster_FewerThanMinPoints(t *testing.T) {
	s := newTestService(t)
	batches := [][]models.IssueReport{
		nil,
		{},
		twoGroups()[:4],
		{
			{Latitude: 10, Longitude: 10, Severity: 5},
			{Latitude: 10, Longitude: 10, Severity: 5},
			{Latitude: 10, Longitude: 10, Severity: 5},
			{Latitude: 10, Longitude: 10, Severity: 5},
		},
	}
	for i, batch := range batches {
		got, err := s.Cluster(context.Background(), batch)
		if err != nil {
			t.Fatalf("batch %d: Cluster failed: %v", i, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("batch %d: expected empty non-nil slice, got %#v", i, got)
		}
	}
}

func TestCluster_TwoGroups(t *testing.T) {
	s := newTestService(t)
	got, err := s.Cluster(context.Background(), twoGroups())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(got))
	}

	wantPoints := [][][2]float64{
		{{12.9000, 77.5900}, {12.9005, 77.5902}, {12.9003, 77.5898}},
		{{13.0500, 77.7000}, {13.0504, 77.7003}, {13.0501, 77.6998}},
	}
	wantAvg := []float64{4, float64(5) / 3}
	for i, c := range got {
		if diff := cmp.Diff(wantPoints[i], c.Points); diff != "" {
			t.Errorf("cluster %d points mismatch (-want +got):\n%s", i, diff)
		}
		if c.Count != 3 {
			t.Errorf("cluster %d: expected count 3, got %d", i, c.Count)
		}
		if c.AverageSeverity != wantAvg[i] {
			t.Errorf("cluster %d: expected avg_severity %v, got %v", i, wantAvg[i], c.AverageSeverity)
		}
	}

	if math.Abs(got[0].Centroid[0]-12.900266) > 1e-5 || math.Abs(got[0].Centroid[1]-77.59) > 1e-5 {
		t.Errorf("unexpected centroid %v", got[0].Centroid)
	}
}

func TestCluster_IsolatedPointIsNoise(t *testing.T) {
	s := newTestService(t)
	reports := append(twoGroups(), models.IssueReport{Latitude: 12.5, Longitude: 77.0, Severity: 5})
	got, err := s.Cluster(context.Background(), reports)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	for _, c := range got {
		for _, p := range c.Points {
			if p == [2]float64{12.5, 77.0} {
				t.Errorf("isolated point appeared in cluster %v", c.Points)
			}
		}
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 clusters, got %d", len(got))
	}
}

func TestCluster_AllNoise(t *testing.T) {
	s := newTestService(t)
	reports := []models.IssueReport{
		{Latitude: 1, Longitude: 1, Severity: 1},
		{Latitude: 2, Longitude: 2, Severity: 2},
		{Latitude: 3, Longitude: 3, Severity: 3},
		{Latitude: 4, Longitude: 4, Severity: 4},
		{Latitude: 5, Longitude: 5, Severity: 5},
	}
	got, err := s.Cluster(context.Background(), reports)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no clusters, got %d", len(got))
	}
}

// A chain spaced exactly eps apart: the middle point is core, the ends are
// border points reached through it.
func TestCluster_InclusiveRadiusAndBorderPoints(t *testing.T) {
	s := newTestService(t)
	reports := []models.IssueReport{
		{Latitude: 0, Longitude: 0, Severity: 2},
		{Latitude: 40, Longitude: 40, Severity: 1},
		{Latitude: 0.002, Longitude: 0, Severity: 4},
		{Latitude: -40, Longitude: -40, Severity: 1},
		{Latitude: 0.004, Longitude: 0, Severity: 3},
	}
	got, err := s.Cluster(context.Background(), reports)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(got))
	}
	want := [][2]float64{{0, 0}, {0.002, 0}, {0.004, 0}}
	if diff := cmp.Diff(want, got[0].Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if got[0].AverageSeverity != 3 {
		t.Errorf("Expected avg_severity 3, got %v", got[0].AverageSeverity)
	}
}

func TestCluster_Deterministic(t *testing.T) {
	s := newTestService(t)
	first, err := s.Cluster(context.Background(), twoGroups())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Cluster(context.Background(), twoGroups())
		if err != nil {
			t.Fatalf("Cluster failed: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestCluster_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPoints = 6
	s, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	badLat := twoGroups()
	badLat[2].Latitude = 91
	badLng := twoGroups()
	badLng[0].Longitude = math.NaN()
	badSeverity := twoGroups()
	badSeverity[5].Severity = 0
	tooMany := append(twoGroups(), models.IssueReport{Latitude: 1, Longitude: 1, Severity: 1})

	tests := map[string][]models.IssueReport{
		"latitude out of range": badLat,
		"longitude NaN":         badLng,
		"severity zero":         badSeverity,
		"too many points":       tooMany,
	}
	for name, reports := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Cluster(context.Background(), reports); !errors.Is(err, ErrClustering) {
				t.Errorf("Expected ErrClustering, got %v", err)
			}
		})
	}
}

func TestCluster_CancelledContext(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Cluster(ctx, twoGroups())
	if !errors.Is(err, ErrClustering) || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected ErrClustering wrapping context.Canceled, got %v", err)
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := map[string]Config{
		"zero eps":      {Eps: 0, MinSamples: 3, MinPoints: 5, MaxPoints: 10, Timeout: time.Second},
		"zero samples":  {Eps: 0.002, MinSamples: 0, MinPoints: 5, MaxPoints: 10},
		"max below min": {Eps: 0.002, MinSamples: 3, MinPoints: 5, MaxPoints: 4},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewService(cfg, nil); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestDBSCAN_LabelsFollowFirstCorePoint(t *testing.T) {
	points := [][2]float64{
		{50, 50},
		{10, 10}, {10.001, 10}, {10, 10.001},
		{20, 20}, {20.001, 20}, {20, 20.001},
	}
	labels, err := dbscan(context.Background(), points, 0.002, 3)
	if err != nil {
		t.Fatalf("dbscan failed: %v", err)
	}
	want := []int{-1, 0, 0, 0, 1, 1, 1}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}
