package utils

import (
	"fmt"
	"runtime/debug"
)

// NewError creates a new error with a message
func NewError(msg string) error {
	return fmt.Errorf("%s", msg)
}

// WrapError wraps an error with additional context
func WrapError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// PanicError is produced when a recovered panic is turned into an error.
type PanicError struct {
	Op     string
	Reason interface{}
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Op, e.Reason)
}

// RecoverError converts a panic in the calling function into *PanicError
// stored in errp. Use as `defer utils.RecoverError("op", &err)`.
// Calls into syscall/js panic on JS exceptions, so every host boundary
// call site goes through this.
func RecoverError(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = &PanicError{Op: op, Reason: r, Stack: string(debug.Stack())}
	}
}

// RecoverWarn recovers a panic and logs it as a warning instead of
// letting it reach the caller.
func RecoverWarn(logger *Logger, op string) {
	if r := recover(); r != nil {
		if logger == nil {
			logger = globalLogger
		}
		logger.Warn("Recovered panic",
			String("op", op),
			Any("reason", r))
	}
}
