package examapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-session/internal/response"
)

// ErrAlreadySubmitted matches (via errors.Is) a backend rejection saying the
// submission was finalized before this call.
var ErrAlreadySubmitted = errors.New("submission already finalized")

// Error is a non-2xx reply from the exam API.
type Error struct {
	StatusCode int
	Code       response.ErrCode
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("exam api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("exam api: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrAlreadySubmitted && e.Code == response.ErrSubmissionAlreadyFinal
}

// CodeOf extracts the API error code from err, or "" when err did not come
// from an API reply (network failure, timeout).
func CodeOf(err error) response.ErrCode {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsRejected reports whether the backend refused the request outright, so
// sending it again cannot succeed. Network failures, 5xx replies, timeouts
// and rate limits are not rejections.
func IsRejected(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
