// Package surface defines the attack-surface snapshot: the structural
// map of reachable URLs and input-bearing forms that detectors probe
// against. A snapshot is built once by the crawler and is read-only
// afterward.
package surface

import "strings"

// Input is a named form input with its inferred type.
type Input struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Form is an HTML form discovered on a crawled page.
type Form struct {
	// Action is the absolute, resolved submission URL.
	Action string `json:"action"`

	// Method is the uppercase HTTP method; GET when the form
	// carried no method attribute.
	Method string `json:"method"`

	// Page is the URL of the page the form was found on.
	Page string `json:"page,omitempty"`

	// Inputs preserves document order.
	Inputs []Input `json:"inputs,omitempty"`
}

// Signature identifies a form for deduplication: two forms with the
// same action, method, and input names are the same attack surface.
func (f Form) Signature() string {
	var b strings.Builder
	b.WriteString(f.Method)
	b.WriteByte(' ')
	b.WriteString(f.Action)
	for _, in := range f.Inputs {
		b.WriteByte('|')
		b.WriteString(in.Name)
	}
	return b.String()
}

// PageError records a non-fatal discovery failure on a child page.
type PageError struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Snapshot is the immutable attack-surface map for one scan.
//
// URLs are deduplicated by normalized form; ordering carries no
// meaning. Forms are deduplicated by Signature. Page errors record
// child fetches that were skipped; they never make a snapshot invalid.
type Snapshot struct {
	Root    string      `json:"root"`
	URLs    []string    `json:"urls"`
	Forms   []Form      `json:"forms,omitempty"`
	Errors  []PageError `json:"errors,omitempty"`
	Partial bool        `json:"partial,omitempty"`
}

// HasURL reports whether u was discovered during the crawl. Detectors
// use this to satisfy the traceability invariant: a finding may only
// be anchored at a discovered URL or form action.
func (s *Snapshot) HasURL(u string) bool {
	if u == s.Root {
		return true
	}
	for _, known := range s.URLs {
		if known == u {
			return true
		}
	}
	return false
}

// HasFormAction reports whether any discovered form submits to u.
func (s *Snapshot) HasFormAction(u string) bool {
	for _, f := range s.Forms {
		if f.Action == u {
			return true
		}
	}
	return false
}

// ParamURLs returns the discovered URLs that carry a query string.
// These are the URL-parameter injection points.
func (s *Snapshot) ParamURLs() []string {
	var out []string
	for _, u := range s.URLs {
		if i := strings.IndexByte(u, '?'); i >= 0 && i < len(u)-1 {
			out = append(out, u)
		}
	}
	return out
}

// Sample returns up to n discovered URLs, root first. Header and
// disclosure detectors use this to probe a bounded page sample
// instead of the whole surface.
func (s *Snapshot) Sample(n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	out = append(out, s.Root)
	for _, u := range s.URLs {
		if len(out) >= n {
			break
		}
		if u != s.Root {
			out = append(out, u)
		}
	}
	return out
}
