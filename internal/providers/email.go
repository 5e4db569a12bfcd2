package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"urban-issue-service/internal/models"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email mails triage alerts to a fixed list of dispatch addresses.
type Email struct {
	addr     string
	auth     smtp.Auth
	from     string
	to       []string
	sendMail sendMailFunc
}

func NewEmail(server string, port int, username, password string, to []string) (*Email, error) {
	if server == "" || port == 0 || username == "" || password == "" {
		return nil, fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("no alert email recipients configured")
	}
	for _, addr := range to {
		if !strings.Contains(addr, "@") {
			return nil, fmt.Errorf("invalid email address: %s", addr)
		}
	}
	return &Email{
		addr:     fmt.Sprintf("%s:%d", server, port),
		auth:     smtp.PlainAuth("", username, password, server),
		from:     username,
		to:       to,
		sendMail: smtp.SendMail,
	}, nil
}

func (e *Email) Name() string { return "email" }

// Notify sends one message to all recipients. net/smtp has no context
// support, so ctx is only checked before dialing.
func (e *Email) Notify(ctx context.Context, ev models.TriageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("[%s] %s reported (severity %d)", ev.Priority, ev.IssueType, ev.Severity)
	body := strings.NewReplacer("*", "", "`", "").Replace(AlertText(ev))
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", strings.Join(e.to, ", "), subject, body)

	if err := e.sendMail(e.addr, e.auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", strings.Join(e.to, ","), err)
	}
	return nil
}
