package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/surge-balancer/internal/admin"
	"github.com/John-Robertt/surge-balancer/internal/fetch"
	"github.com/John-Robertt/surge-balancer/internal/model"
	"github.com/John-Robertt/surge-balancer/internal/profile"
	"github.com/John-Robertt/surge-balancer/internal/store"
	"github.com/John-Robertt/surge-balancer/internal/sub"
	"github.com/John-Robertt/surge-balancer/internal/sub/ss"
	"github.com/John-Robertt/surge-balancer/internal/sub/ssjson"
	"github.com/John-Robertt/surge-balancer/internal/surgeapi"
	"github.com/John-Robertt/surge-balancer/internal/template"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(message string, cause error) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    "INVALID_ARGUMENT",
		Message: message,
		Stage:   "validate_request",
	}, cause)
}

var (
	errLoginFirst = apiError(http.StatusUnauthorized, model.AppError{
		Code:    "UNAUTHORIZED",
		Message: "Login first",
		Stage:   "auth",
	}, nil)
	errInvalidPassword = apiError(http.StatusForbidden, model.AppError{
		Code:    "INVALID_PASSWORD",
		Message: "Invalid password",
		Stage:   "auth",
	}, nil)
	errInvalidMethod = requestError("Invalid method", nil)
)

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, app := classify(err)
	WriteError(w, status, app)
}

func classify(err error) (int, model.AppError) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError
	}

	var oe *admin.Error
	if errors.As(err, &oe) {
		return oe.Status, oe.AppError
	}

	var pe *profile.Error
	if errors.As(err, &pe) {
		return pe.Status, pe.AppError
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return fe.Status, fe.AppError
	}

	var sae *surgeapi.Error
	if errors.As(err, &sae) {
		return http.StatusBadGateway, sae.AppError
	}

	// Subscription bodies that do not parse are upstream content errors.
	var se *ss.ParseError
	if errors.As(err, &se) {
		return http.StatusUnprocessableEntity, se.AppError
	}
	var je *ssjson.ParseError
	if errors.As(err, &je) {
		return http.StatusUnprocessableEntity, je.AppError
	}

	var te *template.TemplateError
	if errors.As(err, &te) {
		return http.StatusBadRequest, te.AppError
	}

	var ue *sub.UnknownTypeError
	if errors.As(err, &ue) {
		return http.StatusBadRequest, model.AppError{
			Code:    "INVALID_ARGUMENT",
			Message: ue.Error(),
			Stage:   "parse_sub",
		}
	}

	if errors.Is(err, store.ErrReadOnly) {
		return http.StatusForbidden, model.AppError{
			Code:    "READ_ONLY",
			Message: err.Error(),
			Stage:   "store",
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, model.AppError{
			Code:    "TIMEOUT",
			Message: "Request timed out",
			Stage:   "internal",
		}
	}

	// Fallback: internal bug or storage failure.
	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Stage:   "internal",
		Hint:    err.Error(),
	}
}
