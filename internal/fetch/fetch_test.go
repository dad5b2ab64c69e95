package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	appLog "dininghours/internal/log"
)

func TestFetchHTTPUsesETagCache(t *testing.T) {
	appLog.SetOutput(io.Discard)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"name":"Okenshields"}`))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "okenshields/feed", Location: srv.URL + "/feed.json"}

	first, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.FromCache || string(first.Body) != `{"name":"Okenshields"}` {
		t.Fatalf("expected fresh body, got %+v", first)
	}

	second, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !second.FromCache || string(second.Body) != string(first.Body) {
		t.Fatalf("expected cached body on 304, got %+v", second)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
}

func TestFetchHTTPFallsBackToCacheOnError(t *testing.T) {
	appLog.SetOutput(io.Discard)

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "hall/hours", Location: srv.URL}
	if _, err := f.FetchOne(context.Background(), src); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("expected cache fallback, got %v", err)
	}
	if !res.FromCache || string(res.Body) != "BEGIN:VCALENDAR" {
		t.Fatalf("expected cached body, got %+v", res)
	}

	_, err = NewFetcher(t.TempDir()).FetchOne(context.Background(), src)
	if err == nil {
		t.Fatalf("expected error with empty cache")
	}
}

func TestFetchLocalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "feed.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := NewFetcher(t.TempDir())
	for _, loc := range []string{path, "file://" + path} {
		res, err := f.FetchOne(context.Background(), Source{ID: "local", Location: loc})
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", loc, err)
		}
		if string(res.Body) != "{}" {
			t.Fatalf("%s: unexpected body %q", loc, res.Body)
		}
	}

	if _, err := f.FetchOne(context.Background(), Source{ID: "missing", Location: filepath.Join(dir, "nope")}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := f.FetchOne(context.Background(), Source{ID: "empty"}); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://example.com/private.ics?token=abcd": "https://example.com/...(redacted)",
		"http://host:8080":                           "http://host:8080/...(redacted)",
		"not a url":                                  "...(redacted)",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Fatalf("redactURL(%q): expected %q, got %q", in, want, got)
		}
	}
}
