package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinRequestInterval = 0 // keep unit tests fast
	cfg.RetryCount = 0
	return cfg
}

func TestFetchReturnsStatusHeadersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	f := New(testConfig())
	resp, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "yes", resp.Headers.Get("X-Test"))
	require.Equal(t, "hello", string(resp.Body))
	// No redirect happened, so the final URL is the request URL as
	// sent, without path normalization.
	require.Equal(t, srv.URL, resp.FinalURL)
}

func TestFetchTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	f := New(cfg)

	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
}

func TestFetchConnectionRefusedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // nothing listens here anymore

	f := New(testConfig())
	_, err := f.Get(context.Background(), addr)
	require.Error(t, err)
	require.Equal(t, KindConnectionRefused, KindOf(err))
}

func TestFetchBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("A", 4096))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 1024
	f := New(cfg)

	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, KindResponseTooLarge, KindOf(err))
}

func TestFetchRedirectLimitAndFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "done")
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	f := New(testConfig())

	resp, err := f.Get(context.Background(), srv.URL+"/hop")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/final", resp.FinalURL)
	require.Equal(t, "done", string(resp.Body))

	_, err = f.Get(context.Background(), srv.URL+"/loop")
	require.Error(t, err)
	require.Equal(t, KindTooManyRedirects, KindOf(err))
}

func TestFetchRetriesOnceOnTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			time.Sleep(300 * time.Millisecond)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.RetryCount = 1
	f := New(cfg)

	resp, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, 2, calls)
}

func TestPerOriginPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MinRequestInterval = 40 * time.Millisecond
	f := New(cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Get(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	// First request is immediate; the next two wait one interval each.
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestErrorRetryable(t *testing.T) {
	retryable := []Kind{KindTimeout, KindConnectionRefused, KindOther}
	terminal := []Kind{KindTooManyRedirects, KindResponseTooLarge, KindTLS}
	for _, k := range retryable {
		require.True(t, (&Error{Kind: k}).Retryable(), "kind %s", k)
	}
	for _, k := range terminal {
		require.False(t, (&Error{Kind: k}).Retryable(), "kind %s", k)
	}
}

func TestKindOfForeignError(t *testing.T) {
	require.Equal(t, KindOther, KindOf(errors.New("plain")))
}
