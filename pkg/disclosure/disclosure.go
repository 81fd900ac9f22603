// Package disclosure finds information leaks: secrets embedded in page
// bodies, technology fingerprints in response headers, and verbose
// error pages.
package disclosure

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector scans sampled pages for leaked information.
type Detector struct {
	SamplePages int
}

// New creates the information-disclosure detector.
func New(samplePages int) *Detector {
	if samplePages < 1 {
		samplePages = 3
	}
	return &Detector{SamplePages: samplePages}
}

func (d *Detector) Name() string { return "info-disclosure" }

// secretPattern matches one class of credential material in a body.
type secretPattern struct {
	name     string
	severity finding.Severity
	re       *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"aws-access-key", finding.High, regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"private-key", finding.High, regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{"jwt", finding.Medium, regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)},
	{"api-key-assignment", finding.Medium, regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token)["'\s]*[:=]["'\s]*[A-Za-z0-9_\-/.+]{16,}`)},
	{"slack-token", finding.High, regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}\b`)},
	{"github-token", finding.High, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
}

// fingerprintHeaders reveal server technology and versions.
var fingerprintHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version", "X-AspNetMvc-Version", "X-Generator"}

// errorMarkers identify verbose stack traces and debug pages.
var errorMarkers = []string{
	"traceback (most recent call last)",
	"fatal error:",
	"stack trace:",
	"ora-00",
	"exception in thread",
	"werkzeug debugger",
	"whoops, looks like something went wrong",
	"undefined index:",
	"warning: mysql",
}

func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	var findings []finding.Finding
	// One finding per pattern and page pair.
	seen := map[string]bool{}

	add := func(f finding.Finding) {
		if seen[f.Key()] {
			return
		}
		seen[f.Key()] = true
		findings = append(findings, f)
	}

	for _, page := range snap.Sample(d.SamplePages) {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		resp, err := fetch.Get(ctx, page)
		if err != nil {
			continue
		}
		body := string(resp.Body)

		for _, p := range secretPatterns {
			match := p.re.FindString(body)
			if match == "" {
				continue
			}
			add(finding.Finding{
				Category:    finding.CategorySensitiveData,
				Severity:    p.severity,
				Title:       fmt.Sprintf("Potential %s exposed in page content", p.name),
				Description: "The page body contains a string matching a known credential format. Leaked credentials grant attackers direct access to backing services.",
				URL:         page,
				Evidence:    map[string]string{"pattern": p.name, "match": redact(match)},
				Remediation: "Remove the credential from the page, rotate it immediately, and move secrets to server-side configuration.",
			})
		}

		for _, h := range fingerprintHeaders {
			v := resp.Headers.Get(h)
			if v == "" {
				continue
			}
			add(finding.Finding{
				Category:    finding.CategoryInfoDisclosure,
				Severity:    finding.Low,
				Title:       fmt.Sprintf("Technology fingerprint in %s header", h),
				Description: fmt.Sprintf("The %s header advertises %q, helping attackers pick version-specific exploits.", h, v),
				URL:         page,
				Evidence:    map[string]string{"header": h, "value": v},
				Remediation: "Strip or genericize technology-identifying headers at the edge.",
			})
		}

		lower := strings.ToLower(body)
		for _, marker := range errorMarkers {
			if !strings.Contains(lower, marker) {
				continue
			}
			add(finding.Finding{
				Category:    finding.CategoryInfoDisclosure,
				Severity:    finding.Medium,
				Title:       "Verbose error output in page content",
				Description: "The page contains stack-trace or debug output. Internal paths, query fragments, and library versions leak to anyone who can trigger the error.",
				URL:         page,
				Evidence:    map[string]string{"marker": marker},
				Remediation: "Disable debug mode in production and serve generic error pages.",
			})
			break
		}
	}
	return findings, nil
}

// redact keeps just enough of a match to locate it without reprinting
// the credential.
func redact(s string) string {
	if len(s) <= 12 {
		return s[:len(s)/2] + "..."
	}
	return s[:8] + "..." + s[len(s)-4:]
}
