// Package upstream is the JSON-over-HTTP client shared by the VAPI, GHL and
// Lindy integrations, and the error type every upstream failure is reported
// with.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Service prefixes used in error messages.
const (
	ServiceVAPI       = "VAPI API"
	ServiceGHL        = "GHL API"
	ServiceLindy      = "Lindy"
	ServiceGeneration = "SOP Generation"
	ServiceGoogleDocs = "Google Docs"
)

// Error is a failed call to an external service.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	Err        error
	retryable  bool
}

func (e *Error) Error() string {
	msg := e.Service + " Error: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	switch {
	case e.StatusCode != 0 && e.Body != "":
		msg += fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	case e.StatusCode != 0:
		msg += fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		msg += e.Err.Error()
	default:
		msg += "unknown failure"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool { return e.retryable }

// Wrap reports err as a failure of service/op. An *Error is returned
// unchanged so service prefixes never stack.
func Wrap(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return err
	}
	return &Error{Service: service, Op: op, Err: err}
}

// As returns the *Error in err's chain.
func As(err error) (*Error, bool) {
	var ue *Error
	ok := errors.As(err, &ue)
	return ue, ok
}

// StatusCode returns the HTTP status of an upstream failure, or 0.
func StatusCode(err error) int {
	if ue, ok := As(err); ok {
		return ue.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	ue, ok := As(err)
	return ok && ue.retryable
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
