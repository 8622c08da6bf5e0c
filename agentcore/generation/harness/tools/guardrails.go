package tools

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
)

// Guardrails enforces the outbound HTTP policy of tool calls.
type Guardrails struct {
	allowedHosts     map[string]bool // empty allows every host
	maxResponseBytes int64
	secretFilters    []*regexp.Regexp
}

// NewGuardrails creates guardrails for the given host allow-list and body cap.
func NewGuardrails(allowedHosts []string, maxResponseBytes int64) *Guardrails {
	g := &Guardrails{
		allowedHosts:     make(map[string]bool, len(allowedHosts)),
		maxResponseBytes: maxResponseBytes,
		secretFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`),
			regexp.MustCompile(`(?i)(api[_-]?key[:=]\s*)\S+`),
			regexp.MustCompile(`(?i)(token[:=]\s*)\S+`),
		},
	}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.allowedHosts[h] = true
		}
	}
	return g
}

// CheckURL parses raw and rejects non-http(s) schemes and hosts outside the
// allow-list. A listed host also admits its subdomains.
func (g *Guardrails) CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url scheme %q is not allowed", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	if len(g.allowedHosts) == 0 {
		return u, nil
	}
	host := strings.ToLower(u.Hostname())
	for allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("host %s is not in the allow-list", host)
}

// ReadBody reads at most the configured cap and reports whether the body was cut.
func (g *Guardrails) ReadBody(r io.Reader) (string, bool, error) {
	if g.maxResponseBytes <= 0 {
		b, err := io.ReadAll(r)
		return string(b), false, err
	}
	b, err := io.ReadAll(io.LimitReader(r, g.maxResponseBytes+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(b)) > g.maxResponseBytes {
		return string(b[:g.maxResponseBytes]), true, nil
	}
	return string(b), false, nil
}

// Redact masks credentials in text that is about to be logged.
func (g *Guardrails) Redact(s string) string {
	for _, f := range g.secretFilters {
		s = f.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}
