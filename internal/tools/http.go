package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPConfig configures the http.request tool.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

// HTTPRequestTool performs an HTTP request with the given method, headers,
// and body, and returns the decoded response.
type HTTPRequestTool struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPRequestTool creates an http.request tool.
func NewHTTPRequestTool(cfg HTTPConfig) *HTTPRequestTool {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPRequestTool{
		config: cfg,
		client: &http.Client{},
	}
}

func (t *HTTPRequestTool) Name() string { return "http.request" }

func (t *HTTPRequestTool) Description() string {
	return "Perform an HTTP request and return status, headers, and decoded body."
}

func (t *HTTPRequestTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "method": {"type": "string", "default": "GET"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {},
    "bearer_token": {"type": "string"},
    "timeout_ms": {"type": "integer"},
    "fail_on_error_status": {"type": "boolean", "default": false}
  },
  "required": ["url"]
}`)
}

func (t *HTTPRequestTool) Call(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http.request: missing required argument 'url'")
	}
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: invalid url %q", rawURL)
	}

	method := http.MethodGet
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	timeout := t.config.DefaultTimeout
	if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	var contentType string
	if body, ok := args["body"]; ok && body != nil {
		if s, isStr := body.(string); isStr {
			bodyReader = strings.NewReader(s)
			contentType = "text/plain"
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeTool, "http.request: encode body").WithCause(err)
			}
			bodyReader = strings.NewReader(string(encoded))
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTool, "http.request: build request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if token, ok := args["bearer_token"].(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "http.request cancelled").WithCause(ctx.Err())
		}
		return nil, schema.NewErrorf(schema.ErrCodeTool, "http.request: %s %s failed", method, rawURL).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTool, "http.request: read response body").WithCause(err)
	}

	result := map[string]any{
		"status":      resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"body":        decodeBody(bodyBytes, resp.Header.Get("Content-Type")),
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if fail, _ := args["fail_on_error_status"].(bool); fail && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "http.request: server returned %d", resp.StatusCode).
			WithDetails(result)
	}
	return result, nil
}

// decodeBody parses JSON responses into structured data; everything else
// comes back as a string.
func decodeBody(body []byte, contentType string) any {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
