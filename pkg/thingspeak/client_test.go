package thingspeak

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeed = `{
	"channel": {"id": 42},
	"feeds": [{
		"created_at": "2024-05-02T09:15:30Z",
		"entry_id": 7,
		"field1": "38.6",
		"field2": "0.10",
		"field3": "0.20",
		"field4": "0.30",
		"field5": "1.1",
		"field6": 1.2,
		"field7": "1.3"
	}]
}`

func TestLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/42/feeds.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "key-1" || r.URL.Query().Get("results") != "1" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	entry, err := NewClient(srv.URL, srv.Client()).Latest(context.Background(), "42", "key-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if entry.Key() != "2024-05-02T09-15-30Z" {
		t.Fatalf("key = %q", entry.Key())
	}
	r := entry.Reading
	if r.Temperature != 38.6 || r.Accelerometer.Z != 0.3 || r.Gyroscope.Y != 1.2 {
		t.Fatalf("unexpected reading: %+v", r)
	}
	if !r.Timestamp.Equal(time.Date(2024, 5, 2, 9, 15, 30, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", r.Timestamp)
	}
}

func TestLatestNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusBadRequest)
	}))
	defer srv.Close()
	if _, err := NewClient(srv.URL, srv.Client()).Latest(context.Background(), "42", "x"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestLatestEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feeds": []}`))
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, srv.Client()).Latest(context.Background(), "42", "x")
	if !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("err = %v, want ErrEmptyFeed", err)
	}
}

func TestParseEntryRejectsMissingField(t *testing.T) {
	feed := map[string]any{
		"created_at": "2024-05-02T09:15:30Z",
		"field1":     "38.6",
		"field2":     "0",
		"field3":     "0",
		"field4":     "0",
		"field5":     "0",
		"field6":     nil,
		"field7":     "0",
	}
	if _, err := ParseEntry(feed); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("err = %v, want ErrInvalidEntry", err)
	}
	feed["field6"] = "spin"
	if _, err := ParseEntry(feed); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("non-numeric err = %v, want ErrInvalidEntry", err)
	}
	feed["field6"] = "0"
	feed["created_at"] = "yesterday"
	if _, err := ParseEntry(feed); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("bad timestamp err = %v, want ErrInvalidEntry", err)
	}
}
