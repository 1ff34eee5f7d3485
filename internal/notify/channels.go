package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/cryptorun/core/internal/alert"
)

// webhookPayload is the JSON body POSTed by the webhook and group-bot
// channels.
type webhookPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Level     string         `json:"level"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt int64          `json:"createdAt"`
	Timestamp string         `json:"timestamp"`
}

func payloadFor(a *alert.Alert) webhookPayload {
	return webhookPayload{
		ID:        a.ID,
		Type:      a.Type,
		Level:     a.Level.String(),
		Title:     a.Title,
		Message:   a.Message,
		Source:    a.Source,
		Data:      a.Data,
		CreatedAt: a.CreatedAt.UnixMilli(),
		Timestamp: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ConsoleChannel writes alerts to a zerolog logger, the always-available
// fallback channel.
type ConsoleChannel struct {
	Logger   zerolog.Logger
	Severity alert.Level
}

func (c *ConsoleChannel) Name() string { return "console" }
func (c *ConsoleChannel) MinLevel() alert.Level { return c.Severity }

func (c *ConsoleChannel) Send(ctx context.Context, a *alert.Alert) error {
	var ev *zerolog.Event
	switch a.Level {
	case alert.LevelEmergency, alert.LevelCritical:
		ev = c.Logger.Error()
	case alert.LevelWarning:
		ev = c.Logger.Warn()
	default:
		ev = c.Logger.Info()
	}
	ev.Str("alert_id", a.ID).Str("type", a.Type).Str("source", a.Source).
		Str("level", a.Level.String()).Str("title", a.Title).Msg(a.Message)
	return nil
}

// WebhookChannel POSTs the JSON payload to a configured URL.
type WebhookChannel struct {
	URL      string
	Severity alert.Level
	Client   *http.Client
}

func (c *WebhookChannel) Name() string          { return "webhook" }
func (c *WebhookChannel) MinLevel() alert.Level { return c.Severity }

func (c *WebhookChannel) Send(ctx context.Context, a *alert.Alert) error {
	body, err := json.Marshal(payloadFor(a))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// GroupBotChannel POSTs the JSON payload to an IM group bot endpoint,
// optionally signing the raw body with HMAC-SHA256 over a shared secret.
type GroupBotChannel struct {
	URL      string
	Secret   string // empty disables signing
	Severity alert.Level
	Client   *http.Client
}

func (c *GroupBotChannel) Name() string          { return "groupbot" }
func (c *GroupBotChannel) MinLevel() alert.Level { return c.Severity }

func (c *GroupBotChannel) Send(ctx context.Context, a *alert.Alert) error {
	body, err := json.Marshal(payloadFor(a))
	if err != nil {
		return fmt.Errorf("marshal group bot payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.Secret != "" {
		mac := hmac.New(sha256.New, []byte(c.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature", "hmac-sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("post group bot message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("group bot returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *GroupBotChannel) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// TelegramChannel sends alerts as Telegram bot messages.
type TelegramChannel struct {
	ChatID   int64
	Severity alert.Level

	bot botSender
}

// botSender is the slice of the Telegram bot API the channel needs,
// injectable for tests.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewTelegramChannel authenticates against the Telegram bot API with the
// given token.
func NewTelegramChannel(token string, chatID int64, minLevel alert.Level) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramChannel{ChatID: chatID, Severity: minLevel, bot: bot}, nil
}

func (c *TelegramChannel) Name() string          { return "telegram" }
func (c *TelegramChannel) MinLevel() alert.Level { return c.Severity }

func (c *TelegramChannel) Send(ctx context.Context, a *alert.Alert) error {
	text := fmt.Sprintf("[%s] %s\n%s\nsource: %s", strings.ToUpper(a.Level.String()), a.Title, a.Message, a.Source)
	if _, err := c.bot.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// EmailChannel delivers alerts over SMTP with a plain-text body.
type EmailChannel struct {
	Host     string // host:port
	Username string
	Password string
	From     string
	To       []string
	Severity alert.Level
}

func (c *EmailChannel) Name() string          { return "email" }
func (c *EmailChannel) MinLevel() alert.Level { return c.Severity }

func (c *EmailChannel) Send(ctx context.Context, a *alert.Alert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(a.Level.String()), a.Title)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n\r\nsource: %s\r\nalert id: %s\r\n",
		c.From, strings.Join(c.To, ", "), subject, a.Message, a.Source, a.ID)

	host := c.Host
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	auth := smtp.PlainAuth("", c.Username, c.Password, host)

	if err := smtp.SendMail(c.Host, auth, c.From, c.To, []byte(msg)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
