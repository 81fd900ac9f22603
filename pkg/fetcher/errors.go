package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Kind classifies a fetch failure. All kinds are non-fatal to the
// surrounding scan; callers decide whether to skip, retry once, or
// record a partial result.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindConnectionRefused Kind = "connection_refused"
	KindTLS               Kind = "tls_error"
	KindTooManyRedirects  Kind = "too_many_redirects"
	KindResponseTooLarge  Kind = "response_too_large"
	KindOther             Kind = "other"
)

// Error is the typed failure returned by Fetch. Use errors.As to
// recover it and inspect the Kind.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a single retry is worthwhile. Redirect
// loops and oversized responses are deterministic and never retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionRefused, KindOther:
		return true
	}
	return false
}

// KindOf returns the Kind of err if it is a fetcher Error,
// KindOther otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

var errTooManyRedirects = errors.New("stopped after redirect limit")

// classify maps a transport error onto the fetch error taxonomy.
func classify(rawURL string, err error) *Error {
	kind := KindOther

	var (
		netErr   net.Error
		tlsRec   *tls.RecordHeaderError
		certErr  *tls.CertificateVerificationError
		hostErr  x509.HostnameError
		unkErr   x509.UnknownAuthorityError
		urlError *url.Error
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnectionRefused
	case errors.As(err, &tlsRec), errors.As(err, &certErr),
		errors.As(err, &hostErr), errors.As(err, &unkErr):
		kind = KindTLS
	case errors.Is(err, errTooManyRedirects):
		kind = KindTooManyRedirects
	case errors.As(err, &urlError) && strings.Contains(err.Error(), "tls:"):
		kind = KindTLS
	}

	return &Error{Kind: kind, URL: rawURL, Err: err}
}
