// Package cors probes a target's cross-origin resource sharing policy
// with attacker-controlled Origin values.
package cors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector sends Origin-bearing requests and inspects the
// Access-Control response headers.
type Detector struct{}

// New creates the CORS detector.
func New() *Detector { return &Detector{} }

func (d *Detector) Name() string { return "cors-policy" }

// hostileOrigins builds the Origin values to probe with. Beyond the
// fixed attacker origin and the null origin, it derives lookalikes
// from the target's registrable domain since reflection filters are
// often substring matches.
func hostileOrigins(target *url.URL) []string {
	origins := []string{
		"https://defendx-probe.example",
		"null",
	}
	host := target.Hostname()
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		// target.com.defendx-probe.example defeats prefix matching;
		// eviltarget.com defeats suffix matching.
		origins = append(origins,
			"https://"+etld1+".defendx-probe.example",
			"https://evil"+etld1,
		)
	}
	return origins
}

func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	target, err := url.Parse(snap.Root)
	if err != nil {
		return nil, err
	}

	var findings []finding.Finding
	seen := map[string]bool{}
	add := func(f finding.Finding) {
		if seen[f.Key()] {
			return
		}
		seen[f.Key()] = true
		findings = append(findings, f)
	}

	for _, origin := range hostileOrigins(target) {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		for _, method := range []string{http.MethodGet, http.MethodOptions} {
			headers := map[string]string{"Origin": origin}
			if method == http.MethodOptions {
				headers["Access-Control-Request-Method"] = "GET"
			}
			resp, err := fetch.Fetch(ctx, fetcher.Request{
				Method:  method,
				URL:     snap.Root,
				Headers: headers,
			})
			if err != nil {
				continue
			}
			for _, f := range evaluate(snap.Root, origin, method, resp.Headers) {
				add(f)
			}
		}
	}
	return findings, nil
}

// evaluate inspects the CORS response headers for one probe.
func evaluate(root, origin, method string, h http.Header) []finding.Finding {
	allowOrigin := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if allowOrigin == "" {
		return nil
	}
	credentials := strings.EqualFold(strings.TrimSpace(h.Get("Access-Control-Allow-Credentials")), "true")

	evidence := map[string]string{
		"origin_sent":       origin,
		"allow_origin":      allowOrigin,
		"allow_credentials": fmt.Sprintf("%t", credentials),
		"method":            method,
	}

	switch {
	case allowOrigin == "*" && credentials:
		return []finding.Finding{{
			Category:    finding.CategoryCORS,
			Severity:    finding.High,
			Title:       "Wildcard CORS origin combined with credentials",
			Description: "The target sends Access-Control-Allow-Origin: * together with Allow-Credentials: true. Any configuration attempting this intends credentialed cross-origin access for everyone.",
			URL:         root,
			Evidence:    evidence,
			Remediation: "Never combine a wildcard origin with credentials; allowlist specific origins instead.",
		}}
	case allowOrigin == "*":
		return []finding.Finding{{
			Category:    finding.CategoryCORS,
			Severity:    finding.Low,
			Title:       "Wildcard CORS origin",
			Description: "Any site may read non-credentialed responses from this target. Harmless for public data, risky if the API later gains authenticated endpoints.",
			URL:         root,
			Evidence:    evidence,
			Remediation: "Allowlist the origins that actually need access.",
		}}
	case allowOrigin == origin && origin == "null":
		sev := finding.Medium
		if credentials {
			sev = finding.High
		}
		return []finding.Finding{{
			Category:    finding.CategoryCORS,
			Severity:    sev,
			Title:       "CORS policy trusts the null origin",
			Description: "Sandboxed iframes and local files send Origin: null; trusting it lets any such context read responses cross-origin.",
			URL:         root,
			Evidence:    evidence,
			Remediation: "Remove null from the allowed origin list.",
		}}
	case allowOrigin == origin:
		sev := finding.Medium
		title := "CORS policy reflects arbitrary origins"
		if credentials {
			sev = finding.High
			title = "CORS policy reflects arbitrary origins with credentials"
		}
		return []finding.Finding{{
			Category:    finding.CategoryCORS,
			Severity:    sev,
			Title:       title,
			Description: "The target echoes attacker-supplied Origin values in Access-Control-Allow-Origin, letting hostile pages read its responses cross-origin.",
			URL:         root,
			Evidence:    evidence,
			Remediation: "Validate the Origin header against an exact allowlist before echoing it.",
		}}
	}
	return nil
}
