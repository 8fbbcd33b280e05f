package profile

import (
	"fmt"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

// Error carries the HTTP status the profile endpoint should answer with.
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
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(status int, code, message, snippet string, cause error) *Error {
	return &Error{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "render_profile",
			Snippet: snippet,
		},
		Cause: cause,
	}
}
