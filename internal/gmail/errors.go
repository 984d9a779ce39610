package gmail

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// SendError wraps a failed messages.send call.
type SendError struct {
	// StatusCode is the HTTP status returned by the API, or 0 when the
	// request never got a response.
	StatusCode int
	// Message is the upstream error text, unmodified.
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gmail send failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gmail send failed: %s", e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func newSendError(err error) *SendError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Error()
		}
		return &SendError{StatusCode: gerr.Code, Message: msg, Err: err}
	}
	return &SendError{Message: err.Error(), Err: err}
}
