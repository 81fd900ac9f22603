// Package xss tests for reflected cross-site scripting by injecting a
// uniquely-marked probe string and checking how the response reflects
// it.
package xss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
)

// Detector injects marked probes into query parameters and form
// fields.
type Detector struct {
	MaxForms int
}

// New creates the reflected-XSS detector.
func New(maxForms int) *Detector {
	if maxForms < 1 {
		maxForms = 5
	}
	return &Detector{MaxForms: maxForms}
}

func (d *Detector) Name() string { return "reflected-xss" }

// marker builds a unique probe. The token ties a reflection to this
// exact request; the quote and bracket prove the sink does not encode
// HTML metacharacters.
type marker struct {
	token   string
	payload string
}

func newMarker() marker {
	token := "dx" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return marker{
		token:   token,
		payload: fmt.Sprintf(`"><%s>`, token),
	}
}

// reflection classifies how a response body reflects the probe.
type reflection int

const (
	notReflected reflection = iota
	// reflectedEscaped: the token appears but the metacharacters were
	// encoded, so the sink is handling output correctly.
	reflectedEscaped
	// reflectedTag: the injected tag survived but the quote was
	// stripped, a partially effective filter.
	reflectedTag
	// reflectedRaw: the full payload appears verbatim.
	reflectedRaw
)

func classify(body []byte, m marker) reflection {
	if bytes.Contains(body, []byte(m.payload)) {
		return reflectedRaw
	}
	if bytes.Contains(body, []byte("<"+m.token+">")) {
		return reflectedTag
	}
	if bytes.Contains(body, []byte(m.token)) {
		return reflectedEscaped
	}
	return notReflected
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

func (d *Detector) probeQueryParams(ctx context.Context, fetch *fetcher.Fetcher, pageURL string, record func(finding.Finding)) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	params := parsed.Query()

	for param := range params {
		m := newMarker()
		mutated := url.Values{}
		for k, vals := range params {
			mutated[k] = append([]string(nil), vals...)
		}
		mutated.Set(param, m.payload)
		probe := *parsed
		probe.RawQuery = mutated.Encode()

		resp, err := fetch.Get(ctx, probe.String())
		if err != nil {
			continue
		}
		if f, ok := judge(pageURL, param, probe.String(), m, resp); ok {
			record(f)
		}
	}
}

func (d *Detector) probeForm(ctx context.Context, fetch *fetcher.Fetcher, form surface.Form, record func(finding.Finding)) bool {
	var fields []string
	for _, in := range form.Inputs {
		switch in.Type {
		case "submit", "button", "image", "reset", "file", "checkbox", "radio", "hidden":
			continue
		}
		if in.Name != "" {
			fields = append(fields, in.Name)
		}
	}
	if len(fields) == 0 {
		return false
	}

	for _, field := range fields {
		m := newMarker()
		values := url.Values{}
		for _, in := range form.Inputs {
			if in.Name != "" {
				values.Set(in.Name, "test")
			}
		}
		values.Set(field, m.payload)

		var resp *fetcher.Response
		var err error
		if strings.EqualFold(form.Method, "POST") {
			resp, err = fetch.PostForm(ctx, form.Action, values)
		} else {
			probe, perr := url.Parse(form.Action)
			if perr != nil {
				continue
			}
			probe.RawQuery = values.Encode()
			resp, err = fetch.Get(ctx, probe.String())
		}
		if err != nil {
			continue
		}
		if f, ok := judge(form.Action, field, form.Action, m, resp); ok {
			record(f)
		}
	}
	return true
}

func judge(anchorURL, param, probeURL string, m marker, resp *fetcher.Response) (finding.Finding, bool) {
	if !resp.IsHTML() && resp.Headers.Get("Content-Type") != "" {
		// Reflection into JSON or plain text is not executable.
		return finding.Finding{}, false
	}

	evidence := map[string]string{
		"payload":   m.payload,
		"probe_url": probeURL,
	}

	switch classify(resp.Body, m) {
	case reflectedRaw:
		return finding.Finding{
			Category:    finding.CategoryXSS,
			Severity:    finding.High,
			Title:       fmt.Sprintf("Reflected XSS in parameter %q", param),
			Description: "The injected probe was reflected into the HTML response without any encoding. An attacker can place script in this parameter and have it execute in victims' browsers.",
			URL:         anchorURL,
			Parameter:   param,
			Evidence:    evidence,
			Remediation: "HTML-encode all user input at output time, or use a templating engine that escapes by default.",
			References:  []string{"https://owasp.org/www-community/attacks/xss/"},
		}, true
	case reflectedTag:
		return finding.Finding{
			Category:    finding.CategoryXSS,
			Severity:    finding.Medium,
			Title:       fmt.Sprintf("Partially filtered XSS reflection in parameter %q", param),
			Description: "The injected tag survived reflection while other metacharacters were stripped. The filter is incomplete and likely bypassable with alternate encodings.",
			URL:         anchorURL,
			Parameter:   param,
			Evidence:    evidence,
			Remediation: "Replace denylist filtering with contextual output encoding.",
			References:  []string{"https://owasp.org/www-community/attacks/xss/"},
		}, true
	}
	return finding.Finding{}, false
}
