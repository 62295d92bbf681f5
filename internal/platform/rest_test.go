package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchMessagesPageDecodesWireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot test-token" {
			t.Errorf("missing bot authorization header")
		}
		if r.URL.Path != "/channels/111/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("before"); got != "222" {
			t.Errorf("expected before=222, got %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": "200",
				"author": {"id": "9", "username": "alice", "global_name": "Alice"},
				"content": "hello",
				"attachments": [{"id": "a1", "filename": "f.png", "url": "u", "proxy_url": "p", "size": 10}],
				"reactions": [{"emoji": {"id": "", "name": "👍"}, "count": 3}],
				"mention_roles": ["55"],
				"pinned": true,
				"timestamp": "2024-06-01T10:00:00Z",
				"edited_timestamp": "2024-06-01T11:00:00Z",
				"message_reference": {"message_id": "150"}
			}
		]`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "test-token", 5*time.Second)
	messages, err := client.FetchMessagesPage(context.Background(), "111", MessagePageOptions{Limit: 50, Before: "222"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	if msg.ID != "200" || msg.Author.Username != "alice" || !msg.Pinned {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ReferencedMessageID != "150" {
		t.Fatalf("expected reply linkage, got %q", msg.ReferencedMessageID)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].MirrorURL != "p" {
		t.Fatalf("unexpected attachments: %+v", msg.Attachments)
	}
	if len(msg.Reactions) != 1 || msg.Reactions[0].Count != 3 {
		t.Fatalf("unexpected reactions: %+v", msg.Reactions)
	}
	if msg.EditedAt == nil {
		t.Fatalf("expected edited timestamp")
	}
	if !msg.CreatedAt.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at: %v", msg.CreatedAt)
	}
}

func TestGetJSONMapsErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/guilds/locked":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "t", 5*time.Second)

	if _, err := client.FetchWorkspace(context.Background(), "gone"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := client.FetchWorkspace(context.Background(), "locked"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := client.FetchWorkspace(context.Background(), "boom"); err == nil {
		t.Fatalf("expected error for 500")
	}
}
