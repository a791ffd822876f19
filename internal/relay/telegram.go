// Package relay forwards newly sent message text to a Telegram chat through
// the Bot API. Delivery is best-effort: failures are logged and swallowed,
// never retried and never surfaced to the sender.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const queueSize = 64

// Config defines fields used for parsing relay settings from environment
// variables. An empty token or chat id means the relay is disabled.
type Config struct {
	Token      string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID     string `env:"TELEGRAM_CHAT_ID"`
	BaseURL    string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	RatePerSec int    `env:"TELEGRAM_RATE" envDefault:"1"`
}

// Enabled reports whether both credentials are present
func (c Config) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

// Telegram drains a bounded queue of notification texts through a rate
// limiter into the Bot API sendMessage call
type Telegram struct {
	logger  *zap.SugaredLogger
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	queue   chan string
}

func New(logger *zap.SugaredLogger, cfg Config) (*Telegram, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telegram credentials are missing")
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}

	return &Telegram{
		logger:  logger,
		cfg:     cfg,
		client:  &http.Client{Timeout: 8 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		queue:   make(chan string, queueSize),
	}, nil
}

// Notify enqueues text for delivery without blocking the caller.
// When the queue is full the notification is dropped.
func (t *Telegram) Notify(text string) {
	select {
	case t.queue <- text:
	default:
		t.logger.Warn("notification dropped, relay queue is full")
	}
}

// Run delivers queued notifications until ctx is cancelled
func (t *Telegram) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			if err := t.limiter.Wait(ctx); err != nil {
				return
			}
			if err := t.deliver(ctx, text); err != nil {
				t.logger.Errorf("relay delivery failed: %v", err)
			}
		}
	}
}

func (t *Telegram) deliver(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.cfg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	url := t.cfg.BaseURL + "/bot" + t.cfg.Token + "/sendMessage"
	req, err := http.NewRequest("POST", url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage returned %d: %s", resp.StatusCode, body)
	}

	return nil
}
