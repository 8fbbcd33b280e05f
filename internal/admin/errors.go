package admin

import (
	"fmt"
	"net/http"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

// Error is an operation failure with the HTTP status to report.
type Error struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return e.AppError.Message
	}
	return fmt.Sprintf("%s: %v", e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(status int, code, stage, message string) *Error {
	return &Error{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
		},
	}
}

func invalid(stage, format string, args ...any) *Error {
	return newError(http.StatusBadRequest, "INVALID_ARGUMENT", stage, fmt.Sprintf(format, args...))
}

func notFound(stage, format string, args ...any) *Error {
	return newError(http.StatusForbidden, "NOT_FOUND", stage, fmt.Sprintf(format, args...))
}
