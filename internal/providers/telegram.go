package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
	"urban-issue-service/internal/utils"
)

// Telegram sends triage alerts to a single chat.
type Telegram struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
	retries int
	delay   time.Duration
}

// NewTelegram creates the bot client. Extra options are passed to bot.New,
// which lets tests point the client at a local server.
func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger, opts ...bot.Option) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Telegram{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
		retries: 3,
		delay:   time.Second,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends one alert, waiting for the rate limiter and retrying failures.
func (t *Telegram) Notify(ctx context.Context, ev models.TriageEvent) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      AlertText(ev),
		ParseMode: "Markdown",
	}
	return utils.Retry(ctx, t.logger, t.retries, t.delay, func() error {
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

// AlertText renders an event as a Markdown message.
func AlertText(ev models.TriageEvent) string {
	text := fmt.Sprintf(
		"*%s priority: %s*\n"+
			"*Severity:* %d/5\n"+
			"*Confidence:* %.3f\n"+
			"*Reported:* %s",
		ev.Priority,
		ev.IssueType,
		ev.Severity,
		ev.Confidence,
		ev.Timestamp.Format("2006-01-02 15:04"),
	)
	if ev.IssueID != "" {
		text += fmt.Sprintf("\n*Issue:* `%s`", ev.IssueID)
	}
	if ev.Latitude != nil && ev.Longitude != nil {
		text += fmt.Sprintf("\n*Location:* %.5f, %.5f", *ev.Latitude, *ev.Longitude)
	}
	return text
}
