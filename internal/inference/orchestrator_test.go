package inference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"urban-issue-service/internal/classifier"
	"urban-issue-service/internal/models"
	"urban-issue-service/internal/severity"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fakeClassifier struct {
	result    models.Classification
	err       error
	CallCount int
}

func (f *fakeClassifier) Classify(_ context.Context, _ classifier.Image) (models.Classification, error) {
	f.CallCount++
	return f.result, f.err
}

type recordingModel struct {
	Last models.SeverityFeatureVector
	out  int
	err  error
}

func (m *recordingModel) Predict(_ context.Context, v models.SeverityFeatureVector) (int, error) {
	m.Last = v
	return m.out, m.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func intPtr(v int) *int { return &v }

func newOrchestrator(t *testing.T, cls classifier.Classifier, m severity.Model, hour int) *Orchestrator {
	t.Helper()
	adapter, err := severity.NewAdapter(m)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	clock := fixedClock(time.Date(2026, 3, 14, hour, 30, 0, 0, time.UTC))
	return New(cls, adapter, clock, nil)
}

func TestInfer_ComposesResult(t *testing.T) {
	cls := &fakeClassifier{result: models.Classification{Type: models.IssuePothole, Confidence: 0.93456}}
	m := &recordingModel{out: 4}
	o := newOrchestrator(t, cls, m, 22)

	got, err := o.Infer(context.Background(), Request{
		Image:             pngBytes(t),
		DescriptionLength: intPtr(56),
		LocationFreq:      intPtr(14),
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	want := Result{
		IssueType:  models.IssuePothole,
		IssueIndex: 2,
		Confidence: 0.935,
		Severity:   4,
		Priority:   models.PriorityHigh,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(models.SeverityFeatureVector{2, 0.93456, 22, 14, 56}, m.Last); diff != "" {
		t.Errorf("feature vector mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_ExplicitHourOverridesClock(t *testing.T) {
	cls := &fakeClassifier{result: models.Classification{Type: models.IssueNormal, Confidence: 0.7}}
	m := &recordingModel{out: 1}
	o := newOrchestrator(t, cls, m, 9)

	_, err := o.Infer(context.Background(), Request{
		Image:             pngBytes(t),
		DescriptionLength: intPtr(10),
		LocationFreq:      intPtr(0),
		Hour:              intPtr(3),
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if m.Last[models.FeatureHour] != 3 {
		t.Errorf("Expected hour 3, got %v", m.Last[models.FeatureHour])
	}
}

func TestInfer_RuleModelEndToEnd(t *testing.T) {
	cls := &fakeClassifier{result: models.Classification{Type: models.IssueGarbage, Confidence: 0.61}}
	o := newOrchestrator(t, cls, severity.RuleModel{}, 14)

	got, err := o.Infer(context.Background(), Request{
		Image:             pngBytes(t),
		DescriptionLength: intPtr(30),
		LocationFreq:      intPtr(2),
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if got.Severity != 3 || got.Priority != models.PriorityMedium {
		t.Errorf("Expected severity 3 Medium, got %d %s", got.Severity, got.Priority)
	}
}

func TestInfer_Errors(t *testing.T) {
	okImage := pngBytes(t)
	tests := []struct {
		name    string
		req     Request
		cls     *fakeClassifier
		model   *recordingModel
		wantVal bool
		wantErr error
	}{
		{
			name:    "missing description length",
			req:     Request{Image: okImage, LocationFreq: intPtr(1)},
			wantVal: true,
		},
		{
			name:    "missing location freq",
			req:     Request{Image: okImage, DescriptionLength: intPtr(1)},
			wantVal: true,
		},
		{
			name:    "negative location freq",
			req:     Request{Image: okImage, DescriptionLength: intPtr(1), LocationFreq: intPtr(-1)},
			wantVal: true,
		},
		{
			name:    "hour out of range",
			req:     Request{Image: okImage, DescriptionLength: intPtr(1), LocationFreq: intPtr(1), Hour: intPtr(25)},
			wantVal: true,
		},
		{
			name:    "not an image",
			req:     Request{Image: []byte("hello"), DescriptionLength: intPtr(1), LocationFreq: intPtr(1)},
			wantErr: classifier.ErrImagePreprocessing,
		},
		{
			name:    "classifier down",
			req:     Request{Image: okImage, DescriptionLength: intPtr(1), LocationFreq: intPtr(1)},
			cls:     &fakeClassifier{err: models.ErrModelUnavailable},
			wantErr: models.ErrModelUnavailable,
		},
		{
			name:    "severity model fails",
			req:     Request{Image: okImage, DescriptionLength: intPtr(1), LocationFreq: intPtr(1)},
			model:   &recordingModel{err: errors.New("boom")},
			wantErr: models.ErrModelUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := tt.cls
			if cls == nil {
				cls = &fakeClassifier{result: models.Classification{Type: models.IssueGarbage, Confidence: 0.8}}
			}
			m := tt.model
			if m == nil {
				m = &recordingModel{out: 3}
			}
			o := newOrchestrator(t, cls, m, 12)

			_, err := o.Infer(context.Background(), tt.req)
			if tt.wantVal {
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Expected ValidationError, got %v", err)
				}
				if cls.CallCount != 0 {
					t.Errorf("Expected classifier not to be called, called %d times", cls.CallCount)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRoundConfidence(t *testing.T) {
	tests := map[float64]float64{
		0.93456: 0.935,
		0.1:     0.1,
		0.99999: 1,
		0.0004:  0,
		0.8125:  0.813,
	}
	for in, want := range tests {
		if got := RoundConfidence(in); got != want {
			t.Errorf("RoundConfidence(%v): expected %v, got %v", in, want, got)
		}
	}
}

func TestInfer_SeverityUsesUnroundedConfidence(t *testing.T) {
	// 0.9004 reports as 0.9 but still earns the high-confidence bump.
	cls := &fakeClassifier{result: models.Classification{Type: models.IssueGarbage, Confidence: 0.9004}}
	o := newOrchestrator(t, cls, severity.RuleModel{}, 14)

	got, err := o.Infer(context.Background(), Request{
		Image:             pngBytes(t),
		DescriptionLength: intPtr(12),
		LocationFreq:      intPtr(0),
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Expected reported confidence 0.9, got %v", got.Confidence)
	}
	if got.Severity != 4 || got.Priority != models.PriorityHigh {
		t.Errorf("Expected severity 4 High, got %d %s", got.Severity, got.Priority)
	}
}
