package tools

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/armon/go-radix"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

// legacyCallPattern matches "METHOD https://host/path" with an optional
// JSON body after the URL.
var legacyCallPattern = regexp.MustCompile(`(?s)^\s*([A-Za-z]+)\s+(https?://\S+)\s*(.*?)\s*$`)

func (e *Executor) executeLegacy(ctx context.Context, raw string, caps capability.Set) string {
	m := legacyCallPattern.FindStringSubmatch(raw)
	if m == nil {
		return errorText(agentcore.ToolExecutionError("malformed call %q: expected \"METHOD https://...\"", excerpt(raw, 80)))
	}
	method, target, body := strings.ToUpper(m[1]), m[2], m[3]
	if !supportedMethods[method] {
		return errorText(agentcore.ToolExecutionError("unsupported method: %s", method))
	}

	req := request{method: method, url: target, headers: http.Header{}}
	name := "legacy"
	if tool, ok := matchToolByURL(caps, target); ok {
		name = tool.Name
		for k, v := range tool.Settings.Headers {
			req.headers.Set(k, v)
		}
		e.applyAuth(req.headers, tool.Settings)
	}
	if body != "" && method != http.MethodGet && method != http.MethodDelete {
		if !json.Valid([]byte(body)) {
			return errorText(agentcore.ToolExecutionError("request body is not valid JSON"))
		}
		req.body = []byte(body)
		req.headers.Set("Content-Type", "application/json")
	}
	return e.do(ctx, name, req, e.cfg.LegacyTimeout)
}

// matchToolByURL picks the bound tool whose URL template prefix (up to the
// first path token) is the longest prefix of target. Among tools sharing a
// prefix the first bound one wins.
func matchToolByURL(caps capability.Set, target string) (capability.ToolCapability, bool) {
	prefixes := radix.New()
	for _, t := range caps.Tools() {
		prefix, _, _ := strings.Cut(t.URLTemplate, "{")
		if prefix == "" {
			continue
		}
		if _, taken := prefixes.Get(prefix); !taken {
			prefixes.Insert(prefix, t)
		}
	}
	_, v, ok := prefixes.LongestPrefix(target)
	if !ok {
		return capability.ToolCapability{}, false
	}
	return v.(capability.ToolCapability), true
}
