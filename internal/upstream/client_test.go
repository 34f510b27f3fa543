package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guttosm/dsepulse/internal/domain/models"
)

func newTestClient(baseURL string, opts ...Option) *Client {
	// High rate limit so retry tests are not throttled.
	opts = append([]Option{WithRateLimit(1000)}, opts...)
	return NewClient(baseURL, opts...)
}

func TestFetch_Success(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != pathLatest {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("<table></table>"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	body, err := c.Fetch(context.Background(), models.SourceLatest, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(body) != "<table></table>" {
		t.Fatalf("unexpected body %q", body)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestFetch_PassesParams(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("startDate", "2024-01-01")
	params.Set("endDate", "2024-01-31")
	params.Set("inst", "ABBANK")

	c := newTestClient(srv.URL)
	if _, err := c.Fetch(context.Background(), models.SourceHistorical, params); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Get("startDate") != "2024-01-01" || got.Get("inst") != "ABBANK" {
		t.Fatalf("params not forwarded: %v", got)
	}
}

func TestFetch_4xxFailsWithoutRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxRetries(3))
	_, err := c.Fetch(context.Background(), models.SourceTop30, nil)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindUpstreamRejected {
		t.Fatalf("expected UpstreamRejected, got %v", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Fatalf("status: want 404 got %d", fe.StatusCode)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("4xx must not retry: got %d requests", n)
	}
}

func TestFetch_5xxRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxRetries(3))
	body, err := c.Fetch(context.Background(), models.SourceLatest, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("unexpected body %q", body)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 requests, got %d", n)
	}
}

func TestFetch_5xxExhaustsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxRetries(2))
	_, err := c.Fetch(context.Background(), models.SourceLatest, nil)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindTooManyRetries {
		t.Fatalf("expected TooManyRetries, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected initial attempt + 2 retries, got %d", n)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := newTestClient(srv.URL, WithMaxRetries(0))
	_, err := c.Fetch(context.Background(), models.SourceLatest, nil)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindUnreachable {
		t.Fatalf("expected Unreachable, got %v", err)
	}
}

func TestFetch_DeadlineClassifiedAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxRetries(0), WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, models.SourceLatest, nil)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestFetch_UnknownSourceKey(t *testing.T) {
	c := newTestClient("http://localhost:0")
	_, err := c.Fetch(context.Background(), models.SourceKey("bogus"), nil)
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindUpstreamRejected {
		t.Fatalf("expected UpstreamRejected for unknown key, got %v", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	srv.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected error after server close")
	}
}
