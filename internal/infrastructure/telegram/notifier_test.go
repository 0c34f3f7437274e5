package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"BillsScanner/internal/config"
)

func TestPublishReportPostsForm(t *testing.T) {
	t.Parallel()

	type sent struct{ path, chat, text, mode string }
	requests := make(chan sent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		requests <- sent{r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text"), r.PostForm.Get("parse_mode")}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "123:abc", ChatID: "-100"})
	n.apiBase = srv.URL

	if err := n.PublishReport(context.Background(), "scrape: added=2 *The_Finance_Bill*"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := <-requests
	if got.path != "/bot123:abc/sendMessage" || got.chat != "-100" || got.mode != "" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.text != "scrape: added=2 *The_Finance_Bill*" {
		t.Fatalf("unexpected text %q", got.text)
	}
}

func TestPublishReportSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "t", ChatID: "c"})
	n.apiBase = srv.URL

	err := n.PublishReport(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api description in error, got %v", err)
	}
}

func TestPublishReportMisconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier(config.TelegramConfig{})
	if n.Enabled() {
		t.Fatal("notifier without token must be disabled")
	}
	if err := n.PublishReport(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxMessageLen+10)
	got := truncate(long, maxMessageLen)
	if utf8.RuneCountInString(got) != maxMessageLen || !strings.HasSuffix(got, "…") {
		t.Fatalf("unexpected truncation, %d runes", utf8.RuneCountInString(got))
	}
	if truncate("short", maxMessageLen) != "short" {
		t.Fatal("short text must be untouched")
	}
}
