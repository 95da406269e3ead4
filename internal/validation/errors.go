package validation

import "errors"

// Error marks input that failed a validation rule, as opposed to an
// infrastructure failure. The message is safe to show to the client.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

func fail(msg string) error {
	return &Error{msg: msg}
}

// NewError builds a validation failure with a client-safe message.
func NewError(msg string) error {
	return &Error{msg: msg}
}

// IsError reports whether err is (or wraps) a validation failure.
func IsError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}
