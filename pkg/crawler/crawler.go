// Package crawler maps the reachable attack surface of a target. It
// performs a bounded, same-origin, breadth-oriented crawl and returns
// a surface.Snapshot of pages, forms, and the errors met on the way.
package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/surface"
	"github.com/defendx/defendx/pkg/workerpool"
)

// Config holds crawl limits.
type Config struct {
	// MaxPages caps how many pages are fetched in one crawl.
	MaxPages int

	// Concurrency is how many pages may be in flight at once.
	Concurrency int
}

// DefaultConfig returns limits for the standard scan mode.
func DefaultConfig() Config {
	return Config{
		MaxPages:    75,
		Concurrency: 8,
	}
}

// Crawler walks a target and builds its surface snapshot. Pacing and
// per-request limits live in the fetcher it is given.
type Crawler struct {
	cfg    Config
	fetch  *fetcher.Fetcher
	logger *slog.Logger
}

// New creates a Crawler using the given fetcher.
func New(cfg Config, fetch *fetcher.Fetcher, logger *slog.Logger) *Crawler {
	def := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{cfg: cfg, fetch: fetch, logger: logger}
}

// crawlState is the shared bookkeeping behind one crawl. admit is the
// only gate onto the queue: it checks the budget and the visited set
// in one critical section, so a URL is queued at most once and never
// beyond MaxPages.
type crawlState struct {
	mu        sync.Mutex
	visited   map[string]bool
	admitted  int
	truncated bool

	urls    []string
	forms   []surface.Form
	formSig map[string]bool
	errs    []surface.PageError
}

func (s *crawlState) admit(key string, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[key] {
		return false
	}
	if s.admitted >= max {
		s.truncated = true
		return false
	}
	s.visited[key] = true
	s.admitted++
	return true
}

func (s *crawlState) addPage(u string) {
	s.mu.Lock()
	s.urls = append(s.urls, u)
	s.mu.Unlock()
}

func (s *crawlState) addForms(forms []surface.Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range forms {
		sig := f.Signature()
		if s.formSig[sig] {
			continue
		}
		s.formSig[sig] = true
		s.forms = append(s.forms, f)
	}
}

func (s *crawlState) addError(u, reason string) {
	s.mu.Lock()
	s.errs = append(s.errs, surface.PageError{URL: u, Reason: reason})
	s.mu.Unlock()
}

// Crawl fetches the root and walks same-origin links until the page
// budget is spent or ctx expires. An unreachable root is fatal; any
// later page failure is recorded in the snapshot and the crawl goes
// on. The returned snapshot is non-nil exactly when error is nil.
func (c *Crawler) Crawl(ctx context.Context, rootURL string) (*surface.Snapshot, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}

	// The root is fetched before any worker starts so a dead target
	// fails the scan instead of producing an empty snapshot.
	rootResp, err := c.fetch.Get(ctx, rootURL)
	if err != nil {
		return nil, err
	}

	state := &crawlState{
		visited: map[string]bool{normalizeURL(rootURL): true},
		formSig: map[string]bool{},
	}
	state.admitted = 1

	// The queue is buffered to the page budget; admit guarantees no
	// more than MaxPages sends, so enqueueing never blocks a worker.
	queue := make(chan string, c.cfg.MaxPages)
	var wg sync.WaitGroup

	enqueue := func(u string) {
		if state.admit(normalizeURL(u), c.cfg.MaxPages) {
			wg.Add(1)
			queue <- u
		}
	}

	process := func(pageURL string, resp *fetcher.Response) {
		final := pageURL
		if resp.FinalURL != "" {
			final = resp.FinalURL
		}
		pageU, err := url.Parse(final)
		if err != nil || !sameOrigin(pageU, root) {
			// Redirected off-origin; the page is out of scope.
			return
		}
		state.addPage(final)

		if !resp.IsHTML() {
			return
		}
		ex := extractPage(resp.Body, pageU)
		state.addForms(ex.forms)
		for _, link := range ex.links {
			linkU, err := url.Parse(link)
			if err != nil || !sameOrigin(linkU, root) {
				continue
			}
			enqueue(link)
		}
	}

	process(rootURL, rootResp)

	// Page fetches run on a bounded pool; each worker drains the
	// queue until it closes.
	pool := workerpool.New(c.cfg.Concurrency, c.logger)
	for i := 0; i < c.cfg.Concurrency; i++ {
		pool.Submit(func(_ context.Context) {
			for pageURL := range queue {
				if ctx.Err() != nil {
					state.addError(pageURL, "crawl cancelled")
					wg.Done()
					continue
				}
				resp, err := c.fetch.Get(ctx, pageURL)
				if err != nil {
					c.logger.Debug("page fetch failed",
						slog.String("url", pageURL),
						slog.Any("error", err))
					state.addError(pageURL, err.Error())
				} else {
					process(pageURL, resp)
				}
				wg.Done()
			}
		})
	}

	wg.Wait()
	close(queue)
	pool.Close()

	state.mu.Lock()
	defer state.mu.Unlock()
	return &surface.Snapshot{
		Root:    rootURL,
		URLs:    state.urls,
		Forms:   state.forms,
		Errors:  state.errs,
		Partial: state.truncated || len(state.errs) > 0,
	}, nil
}
