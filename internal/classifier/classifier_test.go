package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"urban-issue-service/internal/models"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocess_AcceptsPNG(t *testing.T) {
	img, err := Preprocess(tinyPNG(t))
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if img.MIME != "image/png" {
		t.Errorf("Expected image/png, got %s", img.MIME)
	}
	if img.Width != 4 || img.Height != 3 {
		t.Errorf("Expected 4x3, got %dx%d", img.Width, img.Height)
	}
}

func TestPreprocess_Rejects(t *testing.T) {
	truncated := tinyPNG(t)[:20]
	tests := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not a photo of a pothole"),
		"pdf":       []byte("%PDF-1.4\n1 0 obj\n"),
		"truncated": truncated,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Preprocess(data); !errors.Is(err, ErrImagePreprocessing) {
				t.Errorf("Expected ErrImagePreprocessing, got %v", err)
			}
		})
	}
}

func TestRemoteClassifier_Argmax(t *testing.T) {
	var gotType string
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotLen = len(body)
		w.Write([]byte(`{"probabilities":[0.05,0.10,0.8123,0.0377]}`))
	}))
	defer srv.Close()

	data := tinyPNG(t)
	img, err := Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	c := NewRemoteClassifier(srv.URL, time.Second, 0, nil)
	got, err := c.Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Type != models.IssuePothole {
		t.Errorf("Expected pothole, got %v", got.Type)
	}
	if got.Confidence != 0.8123 {
		t.Errorf("Expected confidence 0.8123, got %v", got.Confidence)
	}
	if gotType != "image/png" {
		t.Errorf("Expected Content-Type image/png, got %s", gotType)
	}
	if gotLen != len(data) {
		t.Errorf("Expected %d bytes uploaded, got %d", len(data), gotLen)
	}
}

func TestRemoteClassifier_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"wrong width", http.StatusOK, `{"probabilities":[0.5,0.5]}`, models.ErrModelUnavailable},
		{"out of range", http.StatusOK, `{"probabilities":[1.5,0,0,0]}`, models.ErrModelUnavailable},
		{"server error", http.StatusInternalServerError, `oops`, models.ErrModelUnavailable},
		{"rejected image", http.StatusUnprocessableEntity, `cannot identify image file`, ErrImagePreprocessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewRemoteClassifier(srv.URL, time.Second, 0, nil)
			_, err := c.Classify(context.Background(), Image{Data: []byte{1}, MIME: "image/png"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestArgmax_TiesPickFirst(t *testing.T) {
	got, err := argmax([]float64{0.4, 0.4, 0.1, 0.1})
	if err != nil {
		t.Fatalf("argmax failed: %v", err)
	}
	if got.Type != models.IssueGarbage {
		t.Errorf("Expected garbage on tie, got %v", got.Type)
	}
}
