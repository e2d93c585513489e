package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(opts Options) *Fetcher {
	f := New(opts, nil)
	f.sleeper = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func TestFetch_HTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png; charset=binary")
		w.Write([]byte("pngdata"))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{UserAgent: "tester"})
	res, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(res.Data) != "pngdata" {
		t.Errorf("data = %q", res.Data)
	}
	if res.MIMEType != "image/png" {
		t.Errorf("mime = %q, want image/png", res.MIMEType)
	}
	if gotUA != "tester" {
		t.Errorf("user agent = %q, want tester", gotUA)
	}
}

func TestFetch_RetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{RetryAttempts: 4})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(res.Data) != "ok" {
		t.Errorf("data = %q", res.Data)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestFetch_GivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(Options{RetryAttempts: 2})
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("error = %v, want StatusError 429", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestFetch_PermanentStatusNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(Options{})
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("error = %v, want ErrPermanent", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer srv.Close()

	f := newTestFetcher(Options{MaxBytes: 10})
	if _, err := f.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrPermanent) {
		t.Errorf("error = %v, want ErrPermanent", err)
	}
}

func TestFetch_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f := newTestFetcher(Options{})
	for _, loc := range []string{path, "file://" + path} {
		res, err := f.Fetch(context.Background(), loc)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", loc, err)
		}
		if string(res.Data) != "hello" {
			t.Errorf("Fetch(%s) data = %q", loc, res.Data)
		}
	}

	_, err := f.Fetch(context.Background(), filepath.Join(dir, "missing.jpg"))
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("missing file error = %v, want ErrPermanent", err)
	}
}

func TestFetch_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newTestFetcher(Options{})
	if _, err := f.Fetch(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	f := New(Options{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}, nil)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		if got := f.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	rc, err := newTestFetcher(Options{}).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if buf.String() != "abc" {
		t.Errorf("content = %q", buf.String())
	}
}
