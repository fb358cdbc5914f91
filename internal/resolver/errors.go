package resolver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// StatusError is a non-2xx reply from the trace server.
type StatusError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	status := fmt.Sprintf("%d", e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, text)
	}
	var msg string
	switch detail := errorMessage(e.Body); {
	case detail != "":
		msg = fmt.Sprintf("trace server returned HTTP %s: %s", status, detail)
	case strings.TrimSpace(e.Body) != "":
		msg = fmt.Sprintf("trace server returned HTTP %s with unparsed body: %s", status, bodyPreview(e.Body, 280))
	default:
		msg = fmt.Sprintf("trace server returned HTTP %s with empty error body", status)
	}
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// errorMessage digs the human readable message out of common error envelopes.
func errorMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" || !gjson.Valid(body) {
		return ""
	}
	return messageFrom(gjson.Parse(body))
}

func messageFrom(r gjson.Result) string {
	if !r.IsObject() {
		return ""
	}
	for _, key := range []string{"message", "detail", "error_description", "title", "reason", "reason_phrase"} {
		if v := r.Get(key); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	errField := r.Get("error")
	if msg := messageFrom(errField); msg != "" {
		return msg
	}
	if errField.Type == gjson.String && strings.TrimSpace(errField.Str) != "" {
		return strings.TrimSpace(errField.Str)
	}
	for _, item := range r.Get("errors").Array() {
		if msg := messageFrom(item); msg != "" {
			return msg
		}
		if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
			return strings.TrimSpace(item.Str)
		}
	}
	return ""
}

func bodyPreview(body string, maxLen int) string {
	clean := strings.Join(strings.Fields(body), " ")
	if len(clean) <= maxLen {
		return clean
	}
	return clean[:maxLen] + "..."
}

func requestID(h http.Header) string {
	for _, key := range []string{"x-request-id", "request-id", "x-wandb-trace-id", "cf-ray"} {
		if v := strings.TrimSpace(h.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
