// Package fetcher performs bounded HTTP requests on behalf of the
// crawler and the detectors. Every request carries a timeout, a
// response-size cap, a redirect hop limit, and per-origin pacing so a
// scan can never flood its target regardless of overall concurrency.
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds fetcher configuration. Zero values are replaced with
// the defaults from DefaultConfig.
type Config struct {
	// Timeout is the total per-request timeout.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read; larger
	// responses fail with KindResponseTooLarge.
	MaxBodyBytes int64

	// MaxRedirects is the redirect hop limit.
	MaxRedirects int

	// RetryCount is how many times a retryable failure is retried.
	// Only GET requests are ever retried.
	RetryCount int

	// MinRequestInterval is the minimum spacing between requests to
	// the same origin, independent of caller concurrency.
	MinRequestInterval time.Duration

	// InsecureSkipVerify skips TLS certificate verification. Scan
	// targets frequently present self-signed certificates.
	InsecureSkipVerify bool

	// UserAgent is sent on every request.
	UserAgent string

	// MaxConnsPerHost bounds connection pooling per host.
	MaxConnsPerHost int
}

// DefaultConfig returns defaults tuned for the standard scan mode.
func DefaultConfig() Config {
	return Config{
		Timeout:            10 * time.Second,
		MaxBodyBytes:       1 << 20, // 1MB
		MaxRedirects:       5,
		RetryCount:         1,
		MinRequestInterval: 50 * time.Millisecond,
		InsecureSkipVerify: true,
		UserAgent:          "defendx-scanner/1.0",
		MaxConnsPerHost:    10,
	}
}

// Request describes a single fetch.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully-buffered fetch result.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// FinalURL is the URL after following redirects.
	FinalURL string
	Duration time.Duration
}

// IsHTML reports whether the response declared an HTML content type.
func (r *Response) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.Headers.Get("Content-Type")), "text/html")
}

// Fetcher issues bounded, paced HTTP requests. It is safe for
// concurrent use.
type Fetcher struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

// New creates a Fetcher with the given configuration.
func New(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	f := &Fetcher{
		cfg:    cfg,
		pacers: make(map[string]*rate.Limiter),
	}
	f.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
	return f
}

// Fetch performs the request, pacing by origin and retrying once on
// transient failures when configured. The returned error, if any, is
// always a *Error.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	resp, err := f.fetchOnce(ctx, req)
	if err == nil {
		return resp, nil
	}

	fe, ok := err.(*Error)
	if !ok {
		return nil, err
	}
	if req.Method == http.MethodGet && fe.Retryable() && f.cfg.RetryCount > 0 && ctx.Err() == nil {
		if resp, retryErr := f.fetchOnce(ctx, req); retryErr == nil {
			return resp, nil
		}
	}
	return nil, fe
}

// Get fetches a URL with GET and no extra headers.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.Fetch(ctx, Request{Method: http.MethodGet, URL: rawURL})
}

// PostForm submits application/x-www-form-urlencoded values.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, values url.Values) (*Response, error) {
	return f.Fetch(ctx, Request{
		Method:  http.MethodPost,
		URL:     rawURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(values.Encode()),
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, req Request) (*Response, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: req.URL, Err: err}
	}

	if err := f.pace(ctx, parsed); err != nil {
		return nil, classify(req.URL, err)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: req.URL, Err: err}
	}
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classify(req.URL, err)
	}
	defer drainAndClose(httpResp.Body)

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, classify(req.URL, err)
	}
	if int64(len(data)) > f.cfg.MaxBodyBytes {
		return nil, &Error{Kind: KindResponseTooLarge, URL: req.URL}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       data,
		FinalURL:   httpResp.Request.URL.String(),
		Duration:   time.Since(start),
	}, nil
}

// pace blocks until the per-origin minimum interval allows another
// request. Origins are keyed by scheme://host so HTTP and HTTPS
// endpoints of the same host are paced independently, matching how
// targets usually deploy them.
func (f *Fetcher) pace(ctx context.Context, u *url.URL) error {
	if f.cfg.MinRequestInterval <= 0 {
		return nil
	}
	origin := u.Scheme + "://" + u.Host

	f.mu.Lock()
	limiter, ok := f.pacers[origin]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.cfg.MinRequestInterval), 1)
		f.pacers[origin] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}

// drainAndClose consumes leftover body bytes so the connection can be
// reused, then closes.
func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64*1024))
	rc.Close()
}
