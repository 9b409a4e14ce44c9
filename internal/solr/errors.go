package solr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error describes a failed Collections API call.
type Error struct {
	Action     Action
	StatusCode int    // HTTP status, zero when the request never completed
	Msg        string // Solr's error message, when it sent one
	Err        error  // transport error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("solr %s: %v", e.Action, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("solr %s: http %d: %s", e.Action, e.StatusCode, e.Msg)
	default:
		return fmt.Sprintf("solr %s: http %d", e.Action, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether repeating the same call may succeed: transport
// failures, throttling and server errors.
func (e *Error) Transient() bool {
	if e.Err != nil {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient reports whether err is a transient *Error.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
