package model

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"finchat/pkg/logger"
)

var sensitiveFieldPattern = regexp.MustCompile(`(?i)"(api_key|apikey|password|secret|token)"\s*:\s*"[^"]*"`)

var sensitiveHeaders = []string{"Authorization", "X-Api-Key", "X-Auth-Token", "Cookie"}

// QwenDebugTransport 自定义HTTP传输层，用于调试请求体
type QwenDebugTransport struct {
	base         http.RoundTripper
	debugEnabled bool
}

func NewQwenDebugTransport(base http.RoundTripper, debugEnabled bool) *QwenDebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &QwenDebugTransport{base: base, debugEnabled: debugEnabled}
}

func (t *QwenDebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.debugEnabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.debugEnabled {
		logger.Errorf("[qwen] request failed: %v", err)
	}
	return resp, err
}

func (t *QwenDebugTransport) logRequest(req *http.Request) {
	fields := map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	}
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			fields["header."+name] = "[REDACTED]"
		} else {
			fields["header."+name] = strings.Join(values, ", ")
		}
	}

	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Errorf("[qwen] failed to read request body: %v", err)
			return
		}
		// 恢复请求体，以免影响实际请求
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		fields["body_size"] = len(bodyBytes)
		fields["body"] = redactBody(string(bodyBytes))
	}

	logger.WithFields(fields).Info("[qwen] request")
}

// redactBody 替换请求体中疑似凭证字段的值
func redactBody(body string) string {
	return sensitiveFieldPattern.ReplaceAllString(body, `"$1": "[REDACTED]"`)
}

func isSensitiveHeader(name string) bool {
	for _, h := range sensitiveHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
