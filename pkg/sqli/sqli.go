// Package sqli probes query parameters and form fields for SQL
// injection using error-based and response-differential techniques.
package sqli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector injects SQL metacharacters into every parameterized input
// on the surface.
type Detector struct {
	// MaxForms bounds how many forms are probed.
	MaxForms int
}

// New creates the SQL injection detector.
func New(maxForms int) *Detector {
	if maxForms < 1 {
		maxForms = 5
	}
	return &Detector{MaxForms: maxForms}
}

func (d *Detector) Name() string { return "sql-injection" }

// payloads are tried in order; the quote characters trigger syntax
// errors, the tautology flips boolean logic.
var payloads = []string{`'`, `"`, `' OR '1'='1`}

// dbErrorMarkers are substrings of database error output. Matching one
// after injection is strong evidence the input reaches a SQL string.
var dbErrorMarkers = []string{
	"you have an error in your sql syntax",
	"warning: mysql",
	"unclosed quotation mark after the character string",
	"quoted string not properly terminated",
	"pg::syntaxerror",
	"psql: error",
	"org.postgresql.util.psqlexception",
	"sqlite3.operationalerror",
	"sqlite_error",
	"ora-00933",
	"ora-01756",
	"sqlstate[",
	"odbc sql server driver",
	"jdbc exception",
}

func matchDBError(body []byte) string {
	lower := strings.ToLower(string(body))
	for _, m := range dbErrorMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

func (d *Detector) Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error) {
	var findings []finding.Finding
	seen := map[string]bool{}

	record := func(f finding.Finding) {
		key := f.URL + "|" + f.Parameter
		if seen[key] {
			return
		}
		seen[key] = true
		findings = append(findings, f)
	}

	for _, pageURL := range snap.ParamURLs() {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		d.probeQueryParams(ctx, fetch, pageURL, record)
	}

	probed := 0
	for _, form := range snap.Forms {
		if probed >= d.MaxForms {
			break
		}
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		if d.probeForm(ctx, fetch, form, record) {
			probed++
		}
	}
	return findings, nil
}

// probeQueryParams injects payloads into each query parameter of a
// crawled URL, one parameter at a time.
func (d *Detector) probeQueryParams(ctx context.Context, fetch *fetcher.Fetcher, pageURL string, record func(finding.Finding)) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	params := parsed.Query()
	if len(params) == 0 {
		return
	}

	baseline, err := fetch.Get(ctx, pageURL)
	if err != nil {
		return
	}

	for param := range params {
		for _, payload := range payloads {
			mutated := cloneValues(params)
			mutated.Set(param, params.Get(param)+payload)
			probe := *parsed
			probe.RawQuery = mutated.Encode()

			resp, err := fetch.Get(ctx, probe.String())
			if err != nil {
				continue
			}
			if f, ok := judge(pageURL, param, payload, probe.String(), baseline, resp); ok {
				record(f)
				break
			}
		}
	}
}

// probeForm submits the form once per payload with the payload in
// every text-capable field. Returns whether the form was probed at
// all.
func (d *Detector) probeForm(ctx context.Context, fetch *fetcher.Fetcher, form surface.Form, record func(finding.Finding)) bool {
	fields := injectableFields(form)
	if len(fields) == 0 {
		return false
	}

	baseline, err := submitForm(ctx, fetch, form, benignValues(form))
	if err != nil {
		return true
	}

	for _, field := range fields {
		for _, payload := range payloads {
			values := benignValues(form)
			values.Set(field, "test"+payload)

			resp, err := submitForm(ctx, fetch, form, values)
			if err != nil {
				continue
			}
			if f, ok := judge(form.Action, field, payload, form.Action, baseline, resp); ok {
				record(f)
				break
			}
		}
	}
	return true
}

func injectableFields(form surface.Form) []string {
	var out []string
	for _, in := range form.Inputs {
		switch in.Type {
		case "submit", "button", "image", "reset", "file", "checkbox", "radio":
			continue
		}
		if in.Name != "" {
			out = append(out, in.Name)
		}
	}
	return out
}

func benignValues(form surface.Form) url.Values {
	values := url.Values{}
	for _, in := range form.Inputs {
		if in.Name != "" {
			values.Set(in.Name, "test")
		}
	}
	return values
}

func submitForm(ctx context.Context, fetch *fetcher.Fetcher, form surface.Form, values url.Values) (*fetcher.Response, error) {
	if strings.EqualFold(form.Method, "POST") {
		return fetch.PostForm(ctx, form.Action, values)
	}
	probe, err := url.Parse(form.Action)
	if err != nil {
		return nil, err
	}
	probe.RawQuery = values.Encode()
	return fetch.Get(ctx, probe.String())
}

// judge compares a probed response against its baseline and decides
// whether the pair demonstrates injection.
func judge(anchorURL, param, payload, probeURL string, baseline, resp *fetcher.Response) (finding.Finding, bool) {
	evidence := map[string]string{
		"payload":   payload,
		"probe_url": probeURL,
	}

	if marker := matchDBError(resp.Body); marker != "" && matchDBError(baseline.Body) == "" {
		evidence["db_error"] = marker
		return finding.Finding{
			Category:    finding.CategoryInjection,
			Severity:    finding.High,
			Title:       fmt.Sprintf("SQL injection in parameter %q", param),
			Description: "Injected SQL metacharacters produced a database error in the response, proving the input is concatenated into a SQL statement.",
			URL:         anchorURL,
			Parameter:   param,
			Evidence:    evidence,
			Remediation: "Use parameterized queries or prepared statements; never build SQL from string concatenation.",
			References:  []string{"https://owasp.org/www-community/attacks/SQL_Injection"},
		}, true
	}

	if resp.StatusCode >= 500 && baseline.StatusCode < 500 {
		evidence["status"] = fmt.Sprintf("%d (baseline %d)", resp.StatusCode, baseline.StatusCode)
		return finding.Finding{
			Category:    finding.CategoryInjection,
			Severity:    finding.High,
			Title:       fmt.Sprintf("SQL injection in parameter %q", param),
			Description: "Injected SQL metacharacters changed the response from success to a server error, indicating the input reaches an unprepared query.",
			URL:         anchorURL,
			Parameter:   param,
			Evidence:    evidence,
			Remediation: "Use parameterized queries or prepared statements; never build SQL from string concatenation.",
			References:  []string{"https://owasp.org/www-community/attacks/SQL_Injection"},
		}, true
	}

	if lengthDiverges(len(baseline.Body), len(resp.Body)) {
		evidence["length"] = fmt.Sprintf("%d (baseline %d)", len(resp.Body), len(baseline.Body))
		return finding.Finding{
			Category:    finding.CategoryInjection,
			Severity:    finding.High,
			Title:       fmt.Sprintf("SQL injection in parameter %q", param),
			Description: "Injecting boolean SQL logic changed the response size far beyond the baseline, the signature of a query whose result set the input controls.",
			URL:         anchorURL,
			Parameter:   param,
			Evidence:    evidence,
			Remediation: "Use parameterized queries or prepared statements; never build SQL from string concatenation.",
			References:  []string{"https://owasp.org/www-community/attacks/SQL_Injection"},
		}, true
	}

	return finding.Finding{}, false
}

// lengthDiverges applies the response-size threshold: the delta must
// be large both absolutely and relative to the baseline, so reflected
// payload bytes and minor template noise never trip it.
func lengthDiverges(baseline, probed int) bool {
	delta := probed - baseline
	if delta < 0 {
		delta = -delta
	}
	if delta < 512 {
		return false
	}
	ref := baseline
	if ref < 1 {
		ref = 1
	}
	return float64(delta)/float64(ref) > 0.4
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
