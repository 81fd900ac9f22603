package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/defendx/defendx/pkg/surface"
)

// skippedExtensions are asset types that never yield links or forms.
var skippedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".css": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".mp4": true, ".webm": true, ".mp3": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".exe": true,
}

// extraction holds everything pulled from one HTML page.
type extraction struct {
	links []string
	forms []surface.Form
}

// extractPage tokenizes an HTML body and collects anchor targets and
// forms with their inputs. Relative references are resolved against
// the page URL.
func extractPage(body []byte, page *url.URL) extraction {
	var ex extraction
	var form *surface.Form

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken && tt != html.EndTagToken {
			continue
		}
		tok := z.Token()
		name := tok.Data

		if tt == html.EndTagToken {
			if name == "form" && form != nil {
				ex.forms = append(ex.forms, *form)
				form = nil
			}
			continue
		}

		switch name {
		case "a", "area":
			if href := attr(tok, "href"); href != "" {
				if resolved := resolveURL(href, page); resolved != "" {
					ex.links = append(ex.links, resolved)
				}
			}
		case "form":
			f := surface.Form{
				Action: attr(tok, "action"),
				Method: strings.ToUpper(attr(tok, "method")),
				Page:   page.String(),
			}
			if f.Method == "" {
				f.Method = "GET"
			}
			if f.Action == "" {
				f.Action = page.String()
			} else if resolved := resolveURL(f.Action, page); resolved != "" {
				f.Action = resolved
			}
			form = &f
			if tt == html.SelfClosingTagToken {
				ex.forms = append(ex.forms, f)
				form = nil
			}
		case "input", "select", "textarea", "button":
			if form == nil {
				continue
			}
			in := surface.Input{Name: attr(tok, "name"), Type: strings.ToLower(attr(tok, "type"))}
			if in.Type == "" {
				switch name {
				case "select":
					in.Type = "select"
				case "textarea":
					in.Type = "textarea"
				default:
					in.Type = "text"
				}
			}
			if in.Name != "" {
				form.Inputs = append(form.Inputs, in)
			}
		case "frame", "iframe":
			if src := attr(tok, "src"); src != "" {
				if resolved := resolveURL(src, page); resolved != "" {
					ex.links = append(ex.links, resolved)
				}
			}
		}
	}

	// Unclosed form at EOF still counts.
	if form != nil {
		ex.forms = append(ex.forms, *form)
	}
	return ex
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolveURL resolves a reference against its page and filters out
// schemes and asset types a crawl cannot use. Returns "" when the
// reference should be ignored.
func resolveURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, p := range []string{"javascript:", "mailto:", "tel:", "data:", "ftp:"} {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if ext := pathExtension(resolved.Path); skippedExtensions[ext] {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func pathExtension(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndex(p, "."); i >= 0 {
		return strings.ToLower(p[i:])
	}
	return ""
}

// normalizeURL produces the dedup key for a URL: lowercased scheme and
// host, default ports stripped, fragment dropped, and a trailing slash
// removed from non-root paths so /about and /about/ are one page.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = normalizeHost(u.Scheme, u.Host)
	u.Fragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// normalizeHost lowercases a host and drops the port when it is the
// scheme's default, so host and host:80 name one origin.
func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host
}

// sameOrigin reports whether two URLs share scheme, host, and port.
// Anything else is a third party and out of crawl scope. Hosts are
// compared in normalized form, matching the visited-set keys.
func sameOrigin(a, b *url.URL) bool {
	as := strings.ToLower(a.Scheme)
	bs := strings.ToLower(b.Scheme)
	return as == bs && normalizeHost(as, a.Host) == normalizeHost(bs, b.Host)
}
