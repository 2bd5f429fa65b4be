package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)

// ClientError is a request rejected before it reaches endpoint logic.
// A nil *ClientError means the check passed.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return e.Message
}

// Reject builds a ClientError with the given HTTP status.
func Reject(status int, msg string) *ClientError {
	return &ClientError{Status: status, Message: msg}
}

// BadRequest builds a 400 ClientError.
func BadRequest(msg string) *ClientError {
	return Reject(http.StatusBadRequest, msg)
}

// AsClientError unwraps err into a ClientError if it carries one.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
