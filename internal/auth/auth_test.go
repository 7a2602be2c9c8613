package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func refreshServer(t *testing.T, hits *atomic.Int64, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		// Slow enough that concurrent callers pile up on one flight.
		time.Sleep(20 * time.Millisecond)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	}))
}

func TestToken_SingleFlight(t *testing.T) {
	var hits atomic.Int64
	server := refreshServer(t, &hits, http.StatusOK)
	defer server.Close()

	src := NewTokenSource(Config{RefreshURL: server.URL}, nil)

	const callers = 10
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := src.Token(context.Background())
			if err != nil {
				t.Errorf("Token failed: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Errorf("refresh endpoint hit %d times, want 1", n)
	}
	for i := 1; i < callers; i++ {
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d got %q, want shared %q", i, tokens[i], tokens[0])
		}
	}
}

func TestToken_CachedUntilMargin(t *testing.T) {
	var hits atomic.Int64
	server := refreshServer(t, &hits, http.StatusOK)
	defer server.Close()

	src := NewTokenSource(Config{RefreshURL: server.URL, Margin: time.Minute}, nil)

	first, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	second, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if first != second {
		t.Errorf("cached token changed: %q vs %q", first, second)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("refresh endpoint hit %d times, want 1", n)
	}

	// Move the clock to within the margin; the next call must refresh.
	now := time.Now()
	src.now = func() time.Time { return now.Add(time.Hour - 30*time.Second) }

	third, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if third == first {
		t.Error("token not refreshed inside the expiry margin")
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("refresh endpoint hit %d times, want 2", n)
	}
}

func TestInvalidate_ForcesRefresh(t *testing.T) {
	var hits atomic.Int64
	server := refreshServer(t, &hits, http.StatusOK)
	defer server.Close()

	src := NewTokenSource(Config{RefreshURL: server.URL}, nil)

	first, _ := src.Token(context.Background())
	src.Invalidate()
	second, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if first == second {
		t.Error("Invalidate did not force a refresh")
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("refresh endpoint hit %d times, want 2", n)
	}
}

func TestToken_SessionExpired(t *testing.T) {
	var hits atomic.Int64
	server := refreshServer(t, &hits, http.StatusUnauthorized)
	defer server.Close()

	var expirations atomic.Int64
	src := NewTokenSource(Config{
		RefreshURL:       server.URL,
		OnSessionExpired: func() { expirations.Add(1) },
	}, nil)

	_, err := src.Token(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}

	// Second failure does not re-fire the hook.
	_, err = src.Token(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if n := expirations.Load(); n != 1 {
		t.Errorf("OnSessionExpired fired %d times, want 1", n)
	}
}

func TestHeaders(t *testing.T) {
	var hits atomic.Int64
	server := refreshServer(t, &hits, http.StatusOK)
	defer server.Close()

	src := NewTokenSource(Config{RefreshURL: server.URL}, nil)

	header, err := src.Headers(context.Background())
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}
	if got := header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", got)
	}
}
