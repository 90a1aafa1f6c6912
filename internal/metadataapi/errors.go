package metadataapi

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/metagraph/internal/archive"
)

// AuthenticationError means the session was rejected. It is never retried.
type AuthenticationError struct {
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Code == "" {
		return "authentication failed: " + e.Message
	}
	return fmt.Sprintf("authentication failed: %s: %s", e.Code, e.Message)
}

// RemoteFault carries a protocol-level rejection from the provider.
// Permanent faults end the run; others are retried while polling.
type RemoteFault struct {
	Code      string
	Message   string
	Permanent bool
}

func (e *RemoteFault) Error() string {
	if e.Code == "" {
		return "remote fault: " + e.Message
	}
	return fmt.Sprintf("remote fault %s: %s", e.Code, e.Message)
}

// ExpiredResultError means the provider deleted the retrieve result before it
// was downloaded.
type ExpiredResultError struct {
	AsyncID string
}

func (e *ExpiredResultError) Error() string {
	return fmt.Sprintf("retrieve result %s expired: the result locator is no longer valid", e.AsyncID)
}

// TimeoutError is returned when polling exhausts its attempt cap.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("retrieve did not complete after %d status checks", e.Attempts)
}

// HTTPError is a non-2xx response that carried no SOAP fault.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// TransportError wraps a failure to complete the HTTP exchange at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether a status check that failed with err may be
// attempted again within the poll budget.
func Retryable(err error) bool {
	var (
		fault     *RemoteFault
		httpErr   *HTTPError
		transport *TransportError
		auth      *AuthenticationError
		expired   *ExpiredResultError
		archErr   *archive.ArchiveError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &auth), errors.As(err, &expired), errors.As(err, &archErr):
		return false
	case errors.As(err, &fault):
		return !fault.Permanent
	case errors.As(err, &httpErr), errors.As(err, &transport):
		return true
	default:
		return false
	}
}
