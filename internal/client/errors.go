package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidLocalInput marks requests rejected before they were sent.
var ErrInvalidLocalInput = errors.New("invalid input")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Transient reports failures worth retrying by hand: server errors and rate limits.
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsInvalidManagerCode separates "wrong or missing manager code" from any other
// refusal so the screen can ask for the code again.
func IsInvalidManagerCode(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == "invalid_manager_code"
}

// IsConflict is the recoverable "already exists" condition, e.g. a second open of
// the same day's session.
func IsConflict(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Status == http.StatusConflict
}

func IsForbidden(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Status == http.StatusForbidden && apiErr.Code != "invalid_manager_code"
}

func IsNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Status == http.StatusNotFound
}
