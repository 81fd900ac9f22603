// Package exposure probes well-known sensitive paths that should never
// be reachable on a production host.
package exposure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector requests a fixed table of sensitive paths under the target
// root and reports the ones that respond.
type Detector struct{}

// New creates the exposed-path detector.
func New() *Detector { return &Detector{} }

func (d *Detector) Name() string { return "exposed-paths" }

// probe is one sensitive path with its confirmation rule.
type probe struct {
	path     string
	severity finding.Severity
	title    string
	desc     string
	// confirm validates the body so a catch-all 200 page does not
	// produce a false positive. Nil accepts any 200.
	confirm func(body string) bool
}

var probes = []probe{
	{
		path:     "/.env",
		severity: finding.High,
		title:    "Environment file exposed at /.env",
		desc:     "Dotenv files hold database credentials, API keys, and signing secrets in plain text.",
		confirm: func(body string) bool {
			return strings.Contains(body, "=") && !strings.Contains(strings.ToLower(body), "<html")
		},
	},
	{
		path:     "/.git/HEAD",
		severity: finding.High,
		title:    "Git repository metadata exposed at /.git/",
		desc:     "A reachable .git directory lets attackers reconstruct the full source tree, including any committed secrets.",
		confirm: func(body string) bool {
			return strings.HasPrefix(body, "ref:") || len(body) == 41
		},
	},
	{
		path:     "/config.php.bak",
		severity: finding.High,
		title:    "Configuration backup exposed at /config.php.bak",
		desc:     "Backup copies of config files are served as plain text, revealing credentials the live file would hide.",
		confirm: func(body string) bool {
			return strings.Contains(body, "<?php") || strings.Contains(body, "=")
		},
	},
	{
		path:     "/admin",
		severity: finding.Medium,
		title:    "Administrative interface reachable at /admin",
		desc:     "The admin interface answers unauthenticated requests, making it a direct target for credential attacks.",
	},
	{
		path:     "/phpinfo.php",
		severity: finding.Medium,
		title:    "phpinfo() page exposed",
		desc:     "phpinfo output lists extension versions, file paths, and environment variables.",
		confirm: func(body string) bool {
			return strings.Contains(body, "phpinfo") || strings.Contains(body, "PHP Version")
		},
	},
	{
		path:     "/server-status",
		severity: finding.Medium,
		title:    "Apache server-status page exposed",
		desc:     "mod_status reveals active client IPs and requested URLs in real time.",
		confirm: func(body string) bool {
			return strings.Contains(body, "Apache Server Status")
		},
	},
	{
		path:     "/backup.sql",
		severity: finding.High,
		title:    "Database dump exposed at /backup.sql",
		desc:     "SQL dumps contain full table contents, typically including user credentials.",
		confirm: func(body string) bool {
			lower := strings.ToLower(body)
			return strings.Contains(lower, "create table") || strings.Contains(lower, "insert into")
		},
	},
	{
		path:     "/.DS_Store",
		severity: finding.Low,
		title:    "Directory metadata exposed at /.DS_Store",
		desc:     "Finder metadata files reveal the names of other files in the directory.",
		confirm: func(body string) bool {
			return strings.HasPrefix(body, "\x00\x00\x00\x01Bud1")
		},
	},
}

func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	root, err := url.Parse(snap.Root)
	if err != nil {
		return nil, err
	}
	base := root.Scheme + "://" + root.Host

	var findings []finding.Finding
	for _, p := range probes {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		probeURL := base + p.path
		resp, err := fetch.Get(ctx, probeURL)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			continue
		}
		if p.confirm != nil && !p.confirm(string(resp.Body)) {
			continue
		}
		findings = append(findings, finding.Finding{
			Category:    finding.CategoryExposure,
			Severity:    p.severity,
			Title:       p.title,
			Description: p.desc,
			URL:         snap.Root,
			Evidence: map[string]string{
				"probe_url": probeURL,
				"status":    fmt.Sprintf("%d", resp.StatusCode),
			},
			Remediation: "Block the path at the web server or remove the file from the document root.",
		})
	}
	return findings, nil
}
