// Package urlcheck decides whether a generator-supplied link is an acceptable citation.
package urlcheck

import (
	"net/url"
	"strings"
)

// denylist holds substrings of known placeholder and dead-link patterns. It is matched
// against the lowercased URL and hostname.
var denylist = []string{
	"example.com",
	"example.org",
	"example.net",
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"ow.ly",
	"//t.co/",
	"placeholder",
	"404",
	"notfound",
	"not-found",
	"yourdomain",
	"domain.com",
	"crmspotlight.ai",
}

// Valid reports whether raw is an absolute http(s) URL with a plausible public hostname
// that matches none of the placeholder patterns.
func Valid(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if !validHost(host) {
		return false
	}

	full := strings.ToLower(raw)
	for _, bad := range denylist {
		if strings.Contains(full, bad) || strings.Contains(host, bad) {
			return false
		}
	}
	return true
}

// Filter returns the valid URLs of candidates, preserving their order.
func Filter(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if Valid(c) {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}

func validHost(host string) bool {
	dot := strings.LastIndex(host, ".")
	if dot <= 0 {
		return false
	}
	tld := host[dot+1:]
	if len(tld) < 2 {
		return false
	}
	if strings.HasPrefix(tld, "xn--") {
		return true
	}
	for _, r := range tld {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
