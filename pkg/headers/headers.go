// Package headers checks HTTP security response headers on a target's
// root document.
package headers

import (
	"context"
	"net/http"
	"strings"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector reports missing or weak security headers.
type Detector struct {
	// SamplePages bounds how many snapshot pages are inspected
	// beyond the root.
	SamplePages int
}

// New creates the security-header detector.
func New(samplePages int) *Detector {
	if samplePages < 1 {
		samplePages = 3
	}
	return &Detector{SamplePages: samplePages}
}

func (d *Detector) Name() string { return "security-headers" }

// check describes one header rule.
type check struct {
	header   string
	severity finding.Severity
	title    string
	desc     string
	fix      string
	refs     []string
	// httpsOnly skips the rule on plain-HTTP targets.
	httpsOnly bool
}

var checks = []check{
	{
		header:   "Content-Security-Policy",
		severity: finding.Medium,
		title:    "Missing Content-Security-Policy header",
		desc:     "Without a CSP the browser will load scripts and resources from any origin, leaving the page fully exposed to injected markup.",
		fix:      "Define a Content-Security-Policy that restricts script and resource origins, starting from default-src 'self'.",
		refs:     []string{"https://owasp.org/www-project-secure-headers/#content-security-policy"},
	},
	{
		header:   "X-Frame-Options",
		severity: finding.Medium,
		title:    "Missing X-Frame-Options header",
		desc:     "The page may be framed by other sites, enabling clickjacking attacks against its interactive elements.",
		fix:      "Send X-Frame-Options: DENY or SAMEORIGIN, or a CSP frame-ancestors directive.",
		refs:     []string{"https://owasp.org/www-community/attacks/Clickjacking"},
	},
	{
		header:    "Strict-Transport-Security",
		severity:  finding.Medium,
		title:     "Missing Strict-Transport-Security header",
		desc:      "Browsers may still attempt plain-HTTP connections to this host, allowing downgrade and cookie-theft attacks on hostile networks.",
		fix:       "Send Strict-Transport-Security with a max-age of at least one year on all HTTPS responses.",
		refs:      []string{"https://owasp.org/www-project-secure-headers/#http-strict-transport-security"},
		httpsOnly: true,
	},
	{
		header:   "X-Content-Type-Options",
		severity: finding.Low,
		title:    "Missing X-Content-Type-Options header",
		desc:     "Without nosniff, browsers may MIME-sniff responses into executable types.",
		fix:      "Send X-Content-Type-Options: nosniff.",
	},
	{
		header:   "Referrer-Policy",
		severity: finding.Low,
		title:    "Missing Referrer-Policy header",
		desc:     "Full URLs, including path and query data, leak to third-party sites through the Referer header.",
		fix:      "Send Referrer-Policy: strict-origin-when-cross-origin or stricter.",
	},
	{
		header:   "Permissions-Policy",
		severity: finding.Low,
		title:    "Missing Permissions-Policy header",
		desc:     "Embedded content can request powerful browser features such as camera, microphone, and geolocation.",
		fix:      "Send a Permissions-Policy disabling features the site does not use.",
	},
}

// frameAncestorsCoversXFO reports whether a CSP makes X-Frame-Options
// redundant.
func frameAncestorsCoversXFO(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Content-Security-Policy")), "frame-ancestors")
}

// Detect inspects the root and a sample of crawled pages. Each header
// is reported once, anchored at the first page seen missing it.
func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	isHTTPS := strings.HasPrefix(strings.ToLower(snap.Root), "https://")

	var findings []finding.Finding
	reported := map[string]bool{}

	for _, page := range snap.Sample(d.SamplePages + 1) {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		resp, err := fetch.Get(ctx, page)
		if err != nil {
			if page == snap.Root {
				return nil, err
			}
			continue
		}

		for _, c := range checks {
			if reported[c.header] {
				continue
			}
			if c.httpsOnly && !isHTTPS {
				continue
			}
			if resp.Headers.Get(c.header) != "" {
				continue
			}
			if c.header == "X-Frame-Options" && frameAncestorsCoversXFO(resp.Headers) {
				continue
			}
			reported[c.header] = true
			findings = append(findings, finding.Finding{
				Category:    finding.CategoryMisconfiguration,
				Severity:    c.severity,
				Title:       c.title,
				Description: c.desc,
				URL:         page,
				Evidence:    map[string]string{"header": c.header},
				Remediation: c.fix,
				References:  c.refs,
			})
		}
	}
	return findings, nil
}
