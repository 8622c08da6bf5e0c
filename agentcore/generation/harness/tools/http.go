package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

var (
	pathTokenPattern = regexp.MustCompile(`\{([^{}/]+)\}`)

	supportedMethods = map[string]bool{
		http.MethodGet:    true,
		http.MethodPost:   true,
		http.MethodPut:    true,
		http.MethodPatch:  true,
		http.MethodDelete: true,
	}
)

const errorExcerptRunes = 300

// request is a fully resolved outbound call.
type request struct {
	method  string
	url     string
	headers http.Header
	body    []byte
}

func (e *Executor) executeStructured(ctx context.Context, instr ports.Instruction, caps capability.Set) string {
	doc := map[string]any{"name": instr.Name}
	if instr.Method != "" {
		doc["method"] = instr.Method
	}
	if instr.URL != "" {
		doc["url"] = instr.URL
	}
	if instr.Params != nil {
		doc["params"] = instr.Params
	}
	if err := validateDocument(instructionLoader, doc); err != nil {
		return errorText(agentcore.ToolExecutionError("invalid tool call: %v", err))
	}

	tool, ok := caps.ToolByName(instr.Name)
	if !ok {
		return errorText(agentcore.ToolExecutionError("tool %q is not available", instr.Name))
	}

	req, err := e.buildRequest(tool, instr)
	if err != nil {
		return errorText(err)
	}
	return e.do(ctx, tool.Name, req, e.cfg.Timeout)
}

// buildRequest merges defaults, validates params and lays them out by location.
func (e *Executor) buildRequest(tool capability.ToolCapability, instr ports.Instruction) (request, error) {
	method := strings.ToUpper(strings.TrimSpace(instr.Method))
	if method == "" {
		method = tool.Method
	}
	if !supportedMethods[method] {
		return request{}, agentcore.ToolExecutionError("unsupported method: %s", method)
	}

	urlTemplate := tool.URLTemplate
	if instr.URL != "" && instr.URL != tool.URLTemplate {
		if !sameOrigin(instr.URL, tool.URLTemplate) {
			return request{}, agentcore.ToolExecutionError("url %s does not belong to tool %s", instr.URL, tool.Name)
		}
		urlTemplate = instr.URL
	}

	params := make(map[string]any, len(instr.Params)+len(tool.Settings.Values))
	for k, v := range tool.Settings.Values {
		params[k] = v
	}
	for k, v := range instr.Params {
		params[k] = v
	}
	coerceParams(tool, params)
	if err := validateDocument(parameterSchema(tool), params); err != nil {
		return request{}, agentcore.ToolExecutionError("invalid parameters for %s: %v", tool.Name, err)
	}

	target, err := substitutePath(urlTemplate, params)
	if err != nil {
		return request{}, err
	}

	req := request{method: method, headers: http.Header{}}
	query := url.Values{}
	body := map[string]any{}
	for name, value := range params {
		p, declared := tool.Parameter(name)
		switch {
		case declared && p.In == capability.InHeader:
			req.headers.Set(name, formatValue(value))
		case declared && p.In == capability.InQuery:
			query.Set(name, formatValue(value))
		case method == http.MethodGet || method == http.MethodDelete:
			// These methods carry no body, so body params go to the query too.
			query.Set(name, formatValue(value))
		case declared && p.In == capability.InBody:
			body[name] = value
		default:
			body[name] = value
		}
	}
	for k, v := range tool.Settings.QueryParams {
		if !query.Has(k) {
			query.Set(k, v)
		}
	}
	for k, v := range tool.Settings.Headers {
		req.headers.Set(k, v)
	}
	e.applyAuth(req.headers, tool.Settings)

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	req.url = target

	if len(body) > 0 && method != http.MethodGet && method != http.MethodDelete {
		b, err := json.Marshal(body)
		if err != nil {
			return request{}, agentcore.ToolExecutionError("failed to encode body: %v", err)
		}
		req.body = b
		req.headers.Set("Content-Type", "application/json")
	}
	return req, nil
}

// substitutePath replaces every {name} token with its escaped value and
// consumes the param. Tokens left without a value are an error.
func substitutePath(template string, params map[string]any) (string, error) {
	var missing []string
	out := pathTokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		v, ok := params[name]
		if !ok || v == nil {
			missing = append(missing, name)
			return tok
		}
		delete(params, name)
		return url.PathEscape(formatValue(v))
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", agentcore.ToolExecutionError("missing path parameter(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func (e *Executor) applyAuth(headers http.Header, s capability.Settings) {
	switch s.AuthType {
	case capability.AuthBearer:
		if s.Token != "" {
			headers.Set("Authorization", "Bearer "+s.Token)
		}
	case capability.AuthAPIKey:
		if s.APIKey != "" {
			name := s.KeyName
			if name == "" {
				name = e.cfg.DefaultKeyName
			}
			headers.Set(name, s.APIKey)
		}
	}
}

// do sends the request under its own timeout and renders the outcome.
func (e *Executor) do(ctx context.Context, toolName string, r request, timeout time.Duration) string {
	u, err := e.guardrails.CheckURL(r.url)
	if err != nil {
		return errorText(agentcore.ToolExecutionError("%v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return errorText(agentcore.ToolExecutionError("failed to build request: %v", err))
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	logger := e.logger.With().Str("tool", toolName).Str("method", r.method).Str("host", u.Host).Logger()
	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, query credentials included.
		cause := err
		var uerr *url.Error
		if errors.As(err, &uerr) {
			cause = uerr.Err
		}
		msg := e.guardrails.Redact(cause.Error())
		logger.Warn().Str("path", u.Path).Str("error", msg).Msg("tool call failed")
		return errorText(agentcore.ToolExecutionError("request to %s (%s %s%s) failed: %s", toolName, r.method, u.Host, u.Path, msg))
	}
	defer resp.Body.Close()

	text, truncated, err := e.guardrails.ReadBody(resp.Body)
	if err != nil {
		return errorText(agentcore.ToolExecutionError("failed to read response: %v", err))
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("tool call completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, excerpt(text, errorExcerptRunes))
	}
	if truncated {
		text += "\n[response truncated]"
	}
	return text
}

func sameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(pathTokenPattern.ReplaceAllString(b, "x"))
	if errA != nil || errB != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && strings.EqualFold(ua.Host, ub.Host)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// excerpt truncates s to n runes, marking the cut with "...".
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
