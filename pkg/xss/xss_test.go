package xss

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

func testFetcher() *fetcher.Fetcher {
	cfg := fetcher.DefaultConfig()
	cfg.MinRequestInterval = 0
	return fetcher.New(cfg)
}

func TestUnescapedQueryReflectionIsHigh(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<p>Results for %s</p>", r.URL.Query().Get("q"))
	})

	page := srv.URL + "/search?q=shoes"
	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{page}}

	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)

	f := got[0]
	require.Equal(t, finding.CategoryXSS, f.Category)
	require.Equal(t, finding.High, f.Severity)
	require.Equal(t, "q", f.Parameter)
	require.Equal(t, page, f.URL)
	require.Contains(t, f.Evidence["payload"], `"><dx`)
}

func TestEscapedReflectionIsClean(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<p>Results for %s</p>", html.EscapeString(r.URL.Query().Get("q")))
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/search?q=shoes"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPartiallyFilteredReflectionIsMedium(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// Strips quotes but leaves angle brackets alone.
		q := strings.NewReplacer(`"`, "", "'", "").Replace(r.URL.Query().Get("q"))
		fmt.Fprintf(w, "<p>%s</p>", q)
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/search?q=shoes"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, finding.Medium, got[0].Severity)
}

func TestLoginFormFieldReflection(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<p>Unknown user %s</p>", r.PostFormValue("user"))
	})

	snap := &surface.Snapshot{
		Root: srv.URL + "/",
		URLs: []string{srv.URL + "/"},
		Forms: []surface.Form{{
			Action: srv.URL + "/login",
			Method: "POST",
			Page:   srv.URL + "/",
			Inputs: []surface.Input{
				{Name: "user", Type: "text"},
				{Name: "pass", Type: "password"},
			},
		}},
	}

	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "user", got[0].Parameter)
	require.Equal(t, srv.URL+"/login", got[0].URL)
	require.Equal(t, finding.High, got[0].Severity)
}

func TestJSONReflectionNotReported(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"query": %q}`, r.URL.Query().Get("q"))
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/api?q=x"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMarkersAreUniquePerProbe(t *testing.T) {
	a, b := newMarker(), newMarker()
	require.NotEqual(t, a.token, b.token)
	require.True(t, strings.HasPrefix(a.payload, `"><dx`))
}
