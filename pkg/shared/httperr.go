// Package shared holds small cross-cutting helpers used by multiple
// packages: the HTTPError type and response-body capture helper
// (adapted from the teacher's httputil package).
package shared

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// MaxErrorBodySize bounds how much of an HTTP error response body is
// kept for error messages and logs.
const MaxErrorBodySize = 500

// HTTPError carries a non-2xx HTTP response's status and body.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s (status %d)", e.Status, e.StatusCode)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ParseErrorResponse returns a populated HTTPError for 4xx/5xx
// responses, or nil for success. The body is re-wrapped so the caller
// can still read it afterwards.
func ParseErrorResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	bodyStr := ""
	if err == nil && len(bodyBytes) > 0 {
		bodyStr = truncate(string(bodyBytes), MaxErrorBodySize)
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}

	return &HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), Body: bodyStr, URL: url}
}
