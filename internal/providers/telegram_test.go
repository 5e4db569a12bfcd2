package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"

	"urban-issue-service/internal/models"
)

const okReply = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`

func testEvent() models.TriageEvent {
	ev := models.NewTriageEvent("issue-1", models.IssueWaterlogging, 0.95, 5, models.PriorityEmergency,
		time.Date(2026, 7, 2, 23, 15, 0, 0, time.UTC))
	return ev.WithLocation(12.9, 77.59)
}

func TestTelegram_Notify(t *testing.T) {
	var calls int32
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			text = r.FormValue("text")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okReply))
	}))
	defer srv.Close()

	tg, err := NewTelegram("123:abc", 42, 100, nil, bot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}
	if err := tg.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if !strings.Contains(text, "waterlogging") {
		t.Errorf("Expected message to mention issue type, got %q", text)
	}
}

func TestTelegram_RetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram("123:abc", 42, 100, nil, bot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}
	tg.delay = time.Millisecond

	if err := tg.Notify(context.Background(), testEvent()); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestNewTelegram_RequiresCredentials(t *testing.T) {
	if _, err := NewTelegram("", 42, 1, nil); err == nil {
		t.Error("Expected error for missing token")
	}
	if _, err := NewTelegram("123:abc", 0, 1, nil); err == nil {
		t.Error("Expected error for missing chat id")
	}
}

func TestAlertText(t *testing.T) {
	text := AlertText(testEvent())
	for _, want := range []string{"Emergency", "waterlogging", "5/5", "0.950", "issue-1", "12.90000, 77.59000"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %q", want, text)
		}
	}
}
