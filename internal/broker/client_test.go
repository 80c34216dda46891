package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetQueueStatsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queues/tasks" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("wrong auth header: %s", r.Header.Get("Authorization"))
		}

		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("wrong accept header: %s", r.Header.Get("Accept"))
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages": 42, "consumers": 3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "test-token", 5*time.Second)

	stats, err := client.GetQueueStats(context.Background())
	if err != nil {
		t.Fatalf("GetQueueStats() failed: %v", err)
	}

	if stats.Messages != 42 {
		t.Errorf("Messages = %d, want 42", stats.Messages)
	}

	if stats.Consumers != 3 {
		t.Errorf("Consumers = %d, want 3", stats.Consumers)
	}
}

func TestGetQueueStatsNoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages": 0, "consumers": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "", 5*time.Second)

	if _, err := client.GetQueueStats(context.Background()); err != nil {
		t.Fatalf("GetQueueStats() failed: %v", err)
	}
}

func TestGetQueueStatsQueueNameEscaped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/queues/prod%2Ftasks" {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages": 1, "consumers": 1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "prod/tasks", "", 5*time.Second)

	if _, err := client.GetQueueStats(context.Background()); err != nil {
		t.Fatalf("GetQueueStats() failed: %v", err)
	}
}

func TestGetQueueStatsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "", 5*time.Second)

	if _, err := client.GetQueueStats(context.Background()); err == nil {
		t.Fatal("GetQueueStats() succeeded on 503")
	}
}

func TestGetQueueStatsInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`invalid json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "", 5*time.Second)

	if _, err := client.GetQueueStats(context.Background()); err == nil {
		t.Fatal("GetQueueStats() succeeded on invalid JSON")
	}
}

func TestGetQueueStatsNegativeDepth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages": -5, "consumers": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "", 5*time.Second)

	if _, err := client.GetQueueStats(context.Background()); err == nil {
		t.Fatal("GetQueueStats() accepted negative queue depth")
	}
}

func TestGetQueueStatsContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "tasks", "", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetQueueStats(ctx); err == nil {
		t.Fatal("GetQueueStats() succeeded with cancelled context")
	}
}
