package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"priceflow/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestWebhookNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("应为 POST, 实际 %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	msg := Message{Title: "Baisse de prix: Coussin vert", Body: "12,99 € → 9,99 €", URL: "https://www.gifi.fr/p/1"}

	if err := notifier.Send(context.Background(), msg); err != nil {
		t.Fatalf("Webhook Send 应成功: %v", err)
	}
	if received["title"] != msg.Title {
		t.Fatalf("title 不正确: %#v", received)
	}
	if received["url"] != msg.URL {
		t.Fatalf("url 不正确: %#v", received)
	}
}

func TestWebhookNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), Message{Title: "t"}); err == nil {
		t.Fatal("非 2xx 应报错")
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	msg := Message{Title: "Prix cible atteint", Body: "Coussin vert à 9,99 €", URL: "https://www.gifi.fr/p/1"}

	if err := notifier.Send(context.Background(), msg); err != nil {
		t.Fatalf("Telegram Send 应成功: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Prix cible atteint") || !strings.Contains(received["text"], msg.URL) {
		t.Fatalf("text 应包含标题与链接: %#v", received)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), Message{Title: "t"}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestFromChannel(t *testing.T) {
	webhook := storage.NotificationChannel{
		ID: 1, Name: "ops", Kind: KindWebhook,
		Config: json.RawMessage(`{"url": "https://hooks.example.com/x"}`),
	}
	if _, err := FromChannel(webhook, Options{Logger: testLogger()}); err != nil {
		t.Fatalf("webhook channel 构造失败: %v", err)
	}

	telegram := storage.NotificationChannel{
		ID: 2, Name: "perso", Kind: KindTelegram,
		Config: json.RawMessage(`{"bot_token": "tok", "chat_id": "42"}`),
	}
	if _, err := FromChannel(telegram, Options{Logger: testLogger()}); err != nil {
		t.Fatalf("telegram channel 构造失败: %v", err)
	}

	bad := storage.NotificationChannel{ID: 3, Name: "x", Kind: "pigeon", Config: json.RawMessage(`{}`)}
	if _, err := FromChannel(bad, Options{Logger: testLogger()}); err == nil {
		t.Fatal("未知 kind 应报错")
	}

	missing := storage.NotificationChannel{ID: 4, Name: "y", Kind: KindWebhook, Config: json.RawMessage(`{}`)}
	if _, err := FromChannel(missing, Options{Logger: testLogger()}); err == nil {
		t.Fatal("缺 url 应报错")
	}
}
