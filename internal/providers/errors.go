package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// UpstreamError is a non-2xx answer from the upstream service.
type UpstreamError struct {
	StatusCode int
	Status     string // status text, e.g. "Service Unavailable"
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// NewUpstreamError builds an UpstreamError from a response and its body.
// Status keeps the reason phrase the upstream sent.
func NewUpstreamError(resp *http.Response, body []byte) *UpstreamError {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Status:     reason,
		Body:       string(body),
	}
}

// UnreachableError means the upstream could not be contacted at all.
type UnreachableError struct {
	Address string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("failed to reach upstream at %s: %v", e.Address, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}
