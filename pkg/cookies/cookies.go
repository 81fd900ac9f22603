// Package cookies audits Set-Cookie attributes on a target's pages.
package cookies

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector flags session cookies set without protective attributes.
type Detector struct {
	// SamplePages bounds how many snapshot pages are inspected.
	SamplePages int
}

// New creates the cookie detector.
func New(samplePages int) *Detector {
	if samplePages < 1 {
		samplePages = 3
	}
	return &Detector{SamplePages: samplePages}
}

func (d *Detector) Name() string { return "cookie-flags" }

// sessionNameHints mark cookies that likely carry authentication
// state; those escalate missing flags from low to medium.
var sessionNameHints = []string{"sess", "auth", "token", "sid", "login", "jwt", "csrf"}

func looksLikeSession(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range sessionNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	isHTTPS := strings.HasPrefix(strings.ToLower(snap.Root), "https://")

	var findings []finding.Finding
	seen := map[string]bool{}

	for _, page := range snap.Sample(d.SamplePages) {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		resp, err := fetch.Get(ctx, page)
		if err != nil {
			continue
		}
		for _, c := range parseSetCookies(resp.Headers) {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			findings = append(findings, auditCookie(c, page, isHTTPS)...)
		}
	}
	return findings, nil
}

func parseSetCookies(h http.Header) []*http.Cookie {
	resp := http.Response{Header: h}
	return resp.Cookies()
}

func auditCookie(c *http.Cookie, page string, isHTTPS bool) []finding.Finding {
	severity := finding.Low
	if looksLikeSession(c.Name) {
		severity = finding.Medium
	}

	var missing []string
	if !c.HttpOnly {
		missing = append(missing, "HttpOnly")
	}
	if isHTTPS && !c.Secure {
		missing = append(missing, "Secure")
	}
	if c.SameSite == http.SameSiteDefaultMode || c.SameSite == 0 {
		missing = append(missing, "SameSite")
	}
	if len(missing) == 0 {
		return nil
	}

	return []finding.Finding{{
		Category: finding.CategoryCookie,
		Severity: severity,
		Title:    fmt.Sprintf("Cookie %q set without %s", c.Name, strings.Join(missing, ", ")),
		Description: fmt.Sprintf(
			"The cookie %q is missing the %s attribute(s). Script access, plain-HTTP transmission, or cross-site sending may expose its value.",
			c.Name, strings.Join(missing, ", ")),
		URL: page,
		Evidence: map[string]string{
			"cookie":  c.Name,
			"missing": strings.Join(missing, ","),
		},
		Remediation: "Set HttpOnly and SameSite on all cookies, and Secure on every cookie served over HTTPS.",
		References:  []string{"https://owasp.org/www-community/controls/SecureCookieAttribute"},
	}}
}
