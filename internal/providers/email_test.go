package providers

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestEmail_Notify(t *testing.T) {
	e, err := NewEmail("smtp.example.org", 587, "alerts@example.org", "secret", []string{"ops@example.org", "ward7@example.org"})
	if err != nil {
		t.Fatalf("NewEmail failed: %v", err)
	}
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	if err := e.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotAddr != "smtp.example.org:587" || gotFrom != "alerts@example.org" || len(gotTo) != 2 {
		t.Errorf("unexpected envelope %s %s %v", gotAddr, gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: [Emergency] waterlogging reported (severity 5)") {
		t.Errorf("unexpected subject in %q", gotMsg)
	}
	if strings.Contains(gotMsg, "*") {
		t.Errorf("Expected markdown to be stripped, got %q", gotMsg)
	}
}

func TestEmail_NotifyError(t *testing.T) {
	e, err := NewEmail("smtp.example.org", 587, "alerts@example.org", "secret", []string{"ops@example.org"})
	if err != nil {
		t.Fatalf("NewEmail failed: %v", err)
	}
	boom := errors.New("connection refused")
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	if err := e.Notify(context.Background(), testEvent()); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped send error, got %v", err)
	}
}

func TestNewEmail_Invalid(t *testing.T) {
	tests := map[string]func() error{
		"missing server": func() error {
			_, err := NewEmail("", 587, "u@x.org", "p", []string{"a@x.org"})
			return err
		},
		"no recipients": func() error {
			_, err := NewEmail("smtp.x.org", 587, "u@x.org", "p", nil)
			return err
		},
		"bad recipient": func() error {
			_, err := NewEmail("smtp.x.org", 587, "u@x.org", "p", []string{"ops"})
			return err
		},
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			if fn() == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
