package qstash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer srv.Close()

	client := MustNew(Config{URL: srv.URL, Token: "tok", Retries: 2})
	res, err := client.Publish(context.Background(), "support-escalations", map[string]any{"ticket": "T1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.MessageID != "msg_1" {
		t.Fatalf("MessageID = %q", res.MessageID)
	}
	if gotPath != "/v2/publish/support-escalations" || gotAuth != "Bearer tok" || gotRetries != "2" {
		t.Fatalf("path=%q auth=%q retries=%q", gotPath, gotAuth, gotRetries)
	}
	if gotBody["ticket"] != "T1" {
		t.Fatalf("body = %#v", gotBody)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := MustNew(Config{URL: srv.URL, Token: "tok"})
	if _, err := client.Publish(context.Background(), "dest", map[string]any{}); err == nil {
		t.Fatal("expected error for 401")
	}
	if _, err := client.Publish(context.Background(), " ", map[string]any{}); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Token: "x"}); err == nil {
		t.Fatal("expected missing url error")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io"}); err == nil {
		t.Fatal("expected missing token error")
	}
}
