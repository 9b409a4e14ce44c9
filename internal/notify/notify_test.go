package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rowjay/solr-backups/internal/config"
)

func TestWebhookPostsEvent(t *testing.T) {
	var got Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	hook := Webhook{Name: "ops", URL: srv.URL, Headers: map[string]string{"X-Token": "abc"}}
	event := Event{Type: "backup", Status: StatusPartial, BackupName: "test5", Succeeded: []string{"default"}, Failed: []string{"logs"}}
	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != "abc" || got.BackupName != "test5" || len(got.Failed) != 1 {
		t.Fatalf("unexpected delivery: %q %+v", header, got)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := Multi{Targets: []Notifier{nil, Webhook{Name: "a", URL: srv.URL}, Mattermost{Name: "b", URL: srv.URL}}}
	err := m.Notify(context.Background(), Event{Status: StatusSuccess})
	if err == nil || !strings.Contains(err.Error(), "webhook a") || !strings.Contains(err.Error(), "mattermost b") {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestMatrixUsesBearerToken(t *testing.T) {
	var auth, method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, method, path = r.Header.Get("Authorization"), r.Method, r.URL.Path
	}))
	defer srv.Close()

	mx := Matrix{Name: "m", ServerURL: srv.URL + "/", AccessToken: "tok", RoomID: "!room:example.org"}
	if err := mx.Notify(context.Background(), Event{Status: StatusSuccess}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer tok" || method != http.MethodPut || !strings.HasPrefix(path, "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/") {
		t.Fatalf("unexpected request: %s %s %s", auth, method, path)
	}
}

func TestEventText(t *testing.T) {
	e := Event{Status: StatusPartial, Message: "backup test5", Succeeded: []string{"a"}, Failed: []string{"b", "c"}}
	if got := e.Text(); got != "[partial] backup test5 (1 ok, 2 failed: b, c)" {
		t.Fatalf("unexpected text: %s", got)
	}
}

func TestFromConfig(t *testing.T) {
	m := FromConfig(config.NotificationsConfig{
		Webhooks:   []config.WebhookConfig{{Name: "w", URL: "http://x"}},
		Mattermost: []config.MattermostHook{{Name: "mm", URL: "http://y"}},
	})
	if len(m.Targets) != 2 {
		t.Fatalf("unexpected targets: %d", len(m.Targets))
	}
	var none Multi
	if err := none.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("empty multi should not fail: %v", err)
	}
}
