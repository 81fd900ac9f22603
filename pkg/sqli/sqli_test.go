package sqli

import (
	"context"
	"fmt"
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

func TestErrorBasedInjectionInQueryParam(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if strings.ContainsAny(id, `'"`) {
			fmt.Fprint(w, "You have an error in your SQL syntax near ''1''")
			return
		}
		fmt.Fprint(w, "item page")
	})

	page := srv.URL + "/item?id=1"
	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/", page}}

	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)

	f := got[0]
	require.Equal(t, finding.CategoryInjection, f.Category)
	require.Equal(t, finding.High, f.Severity)
	require.Equal(t, "id", f.Parameter)
	// Traceability: the finding anchors at the crawled URL and the
	// probe URL with the payload lives in evidence.
	require.Equal(t, page, f.URL)
	require.Contains(t, f.Evidence["probe_url"], "id=1%27")
	require.NotEmpty(t, f.Evidence["db_error"])
}

func TestFormFieldInjectionReported(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if strings.Contains(r.PostFormValue("user"), "'") {
			fmt.Fprint(w, "unclosed quotation mark after the character string")
			return
		}
		fmt.Fprint(w, "login failed")
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
}

func TestStatusDivergenceReported(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("id"), "'") {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/item?id=1"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, finding.High, got[0].Severity)
	require.Contains(t, got[0].Evidence["status"], "500")
}

func TestBooleanLengthDivergenceReported(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "OR") {
			// Tautology dumps every row.
			fmt.Fprint(w, strings.Repeat("<tr><td>row</td></tr>", 200))
			return
		}
		fmt.Fprint(w, "<p>no results</p>")
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/search?q=x"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, finding.High, got[0].Severity)
	require.NotEmpty(t, got[0].Evidence["length"])
}

func TestLengthThreshold(t *testing.T) {
	require.False(t, lengthDiverges(1000, 1100))
	require.False(t, lengthDiverges(10000, 10600))
	require.True(t, lengthDiverges(1000, 4000))
	require.True(t, lengthDiverges(0, 5000))
}

func TestParameterizedBackendIsClean(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "item: not found")
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/item?id=1"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAlreadyBrokenPageNotReported(t *testing.T) {
	// The page errors on every request; the baseline shows the same
	// marker, so injection cannot be inferred.
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Warning: mysql_connect(): connection refused")
	})

	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/item?id=1"}}
	got, err := New(5).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFormBudgetRespected(t *testing.T) {
	var submissions int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/f", func(w http.ResponseWriter, r *http.Request) {
		submissions++
		fmt.Fprint(w, "ok")
	})

	var forms []surface.Form
	for i := 0; i < 4; i++ {
		forms = append(forms, surface.Form{
			Action: fmt.Sprintf("%s/f?n=%d", srv.URL, i),
			Method: "POST",
			Page:   srv.URL + "/",
			Inputs: []surface.Input{{Name: "q", Type: "text"}},
		})
	}
	snap := &surface.Snapshot{Root: srv.URL + "/", URLs: []string{srv.URL + "/"}, Forms: forms}

	_, err := New(2).Detect(context.Background(), snap, testFetcher())
	require.NoError(t, err)
	// 2 forms, each 1 baseline + 3 payloads.
	require.Equal(t, 8, submissions)
}
