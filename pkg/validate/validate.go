// Package validate vets scan targets before any network work begins.
// Rules are deliberately conservative: only public HTTP(S) hosts may
// be scanned, never loopback, private, or link-local addresses.
package validate

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ValidationError is a pre-flight rejection. It is surfaced to the
// caller immediately; no scan job is created and no request is sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid target: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Options relax individual rules. The zero value is the strict,
// production ruleset.
type Options struct {
	// AllowPrivate permits loopback and RFC1918 targets. Used by
	// self-assessment setups scanning their own staging hosts.
	AllowPrivate bool
}

// blockedHostSuffixes are name patterns that always denote local
// infrastructure.
var blockedHostSuffixes = []string{".local", ".localhost", ".internal"}

// Target parses and vets a target URL with the strict ruleset.
// Errors are always *ValidationError.
func Target(rawURL string) (*url.URL, error) {
	return TargetWithOptions(rawURL, Options{})
}

// TargetWithOptions parses and vets a target URL.
func TargetWithOptions(rawURL string, opts Options) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, invalid("URL is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalid("malformed URL: %v", err)
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, invalid("unsupported scheme %q: targets must use http or https", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, invalid("missing hostname")
	}

	if err := checkHost(host, opts); err != nil {
		return nil, err
	}
	return parsed, nil
}

func checkHost(host string, opts Options) error {
	lower := strings.ToLower(host)

	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return invalid("scanning local addresses is not allowed")
		}
	}

	if opts.AllowPrivate {
		return nil
	}

	if lower == "localhost" {
		return invalid("scanning localhost is not allowed")
	}

	// Hostnames that are not IP literals pass here; DNS resolution
	// failures are the fetcher's problem.
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return invalid("scanning private or loopback addresses is not allowed")
	}
	return nil
}
