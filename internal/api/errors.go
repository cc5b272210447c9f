package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carelink/carelink-server/internal/apperr"
)

type ApiError struct {
	StatusCode int               `json:"status_code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	Err        error             `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// fromDomainError maps a service error onto an HTTP response body. The
// domain message is surfaced verbatim for recoverable kinds; anything
// else becomes an opaque 500.
func fromDomainError(err error) *ApiError {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return NewInternalServerError(err)
	}

	switch ae.Kind {
	case apperr.KindNotFound:
		return &ApiError{StatusCode: http.StatusNotFound, Message: ae.Message}
	case apperr.KindForbidden:
		return &ApiError{StatusCode: http.StatusForbidden, Message: ae.Message}
	case apperr.KindConflict:
		return &ApiError{StatusCode: http.StatusConflict, Message: ae.Message}
	case apperr.KindInvalidState:
		return &ApiError{StatusCode: http.StatusUnprocessableEntity, Message: ae.Message}
	case apperr.KindValidationFailed:
		return &ApiError{StatusCode: http.StatusBadRequest, Message: ae.Message, Fields: ae.Fields}
	case apperr.KindUnauthenticated:
		return &ApiError{StatusCode: http.StatusUnauthorized, Message: ae.Message}
	default:
		return NewInternalServerError(err)
	}
}
