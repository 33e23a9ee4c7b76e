package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError represents a non-2xx API response.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "unknown API error"
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
}

// RateLimitError indicates request throttling by the provider.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.APIError.Error(), e.RetryAfter.Round(time.Second))
	}
	return e.APIError.Error()
}

// classifyResponse converts a failed response into a typed error.
func classifyResponse(resp *http.Response, body []byte) error {
	payload := strings.TrimSpace(string(body))
	msg := extractMessage(payload)
	if msg == "" {
		msg = payload
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	base := APIError{StatusCode: resp.StatusCode, Message: msg, Body: payload}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{APIError: base, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return &base
}

func extractMessage(payload string) string {
	if payload == "" {
		return ""
	}
	var body struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil || body.Error == nil {
		return ""
	}
	if m := strings.TrimSpace(body.Error.Message); m != "" {
		return m
	}
	return strings.TrimSpace(body.Error.Type)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
