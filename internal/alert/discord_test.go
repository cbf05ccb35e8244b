package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordSend(t *testing.T) {
	t.Parallel()

	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	client := NewDiscordClient(server.URL, server.Client())
	client.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := client.Send(context.Background(), Message{
		Embeds: []Embed{{
			Title:  "Payment confirmed (Stripe)",
			Color:  ColorGreen,
			Fields: []Field{{Name: "Order ID", Value: "o1", Inline: true}},
		}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if received.Username != "AfroBirthday" {
		t.Fatalf("expected default username, got %q", received.Username)
	}
	if len(received.Embeds) != 1 || received.Embeds[0].Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected embeds: %+v", received.Embeds)
	}
	if received.Embeds[0].Color != ColorGreen {
		t.Fatalf("unexpected color %d", received.Embeds[0].Color)
	}
}

func TestDiscordSendErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	if err := NewDiscordClient(server.URL, server.Client()).Send(context.Background(), Message{Content: "hi"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}

	if err := NewDiscordClient("", nil).Send(context.Background(), Message{Content: "hi"}); err != nil {
		t.Fatalf("unconfigured client should be a no-op, got %v", err)
	}
	var nilClient *DiscordClient
	if err := nilClient.Send(context.Background(), Message{Content: "hi"}); err != nil {
		t.Fatalf("nil client should be a no-op, got %v", err)
	}
}
