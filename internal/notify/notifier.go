package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"priceflow/internal/storage"
)

// Message 是一条待投递的通知。
type Message struct {
	Title string
	Body  string
	URL   string
}

// Notifier 定义通知投递接口。
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Channel kinds stored in notification_channels.kind.
const (
	KindWebhook  = "webhook"
	KindTelegram = "telegram"
)

// Options carries shared delivery settings.
type Options struct {
	Timeout         time.Duration
	TelegramAPIBase string
	Logger          zerolog.Logger
}

// FromChannel builds the Notifier for a stored channel row.
func FromChannel(channel storage.NotificationChannel, opts Options) (Notifier, error) {
	switch channel.Kind {
	case KindWebhook:
		var cfg struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(channel.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode webhook channel %q: %w", channel.Name, err)
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook channel %q: url is required", channel.Name)
		}
		return NewWebhookNotifier(cfg.URL, opts.Timeout, opts.Logger), nil
	case KindTelegram:
		var cfg struct {
			BotToken string `json:"bot_token"`
			ChatID   string `json:"chat_id"`
		}
		if err := json.Unmarshal(channel.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode telegram channel %q: %w", channel.Name, err)
		}
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return nil, fmt.Errorf("telegram channel %q: bot_token and chat_id are required", channel.Name)
		}
		return NewTelegramNotifier(cfg.BotToken, cfg.ChatID, opts.TelegramAPIBase, opts.Timeout, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown channel kind %q", channel.Kind)
	}
}

// WebhookNotifier 向任意 HTTP 端点投递 JSON 通知。
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier 构造 webhook 通知器。
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify_webhook").Logger(),
	}
}

// Send POST 通知负载。
func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"title": msg.Title,
		"body":  msg.Body,
		"url":   msg.URL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().Str("title", msg.Title).Msg("通知已发送 (Webhook)")
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	text := msg.Title + "\n" + msg.Body
	if msg.URL != "" {
		text += "\n" + msg.URL
	}
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("title", msg.Title).Msg("通知已发送 (Telegram)")
	return nil
}

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
