// Package apperr carries business-rule and infrastructure failures from the
// services layer to the HTTP boundary with a machine-checkable kind.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"

	"gorm.io/gorm"
)

type Kind string

const (
	Invalid      Kind = "invalid"
	NotFound     Kind = "not_found"
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	Conflict     Kind = "conflict"
	Retryable    Kind = "retryable"
	Internal     Kind = "internal"
)

const genericMessage = "An unexpected error occurred"

// AppError is the structured error returned by services.
type AppError struct {
	Kind      Kind
	Code      string            // stable machine code, e.g. INVALID_STATUS
	PublicMsg string            // safe to show to the caller
	Fields    map[string]string // per-field validation messages
	Err       error             // internal cause, logged only
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.PublicMsg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.PublicMsg)
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func isNil(err error) bool {
	if err == nil {
		return true
	}
	ae, ok := err.(*AppError)
	return ok && ae == nil
}

func InvalidErr(code, publicMsg string, fields map[string]string) *AppError {
	return &AppError{Kind: Invalid, Code: code, PublicMsg: publicMsg, Fields: fields}
}

func NotFoundErr(code, publicMsg string) *AppError {
	return &AppError{Kind: NotFound, Code: code, PublicMsg: publicMsg}
}

func UnauthorizedErr(code, publicMsg string) *AppError {
	return &AppError{Kind: Unauthorized, Code: code, PublicMsg: publicMsg}
}

func ForbiddenErr(code, publicMsg string) *AppError {
	return &AppError{Kind: Forbidden, Code: code, PublicMsg: publicMsg}
}

func ConflictErr(code, publicMsg string) *AppError {
	return &AppError{Kind: Conflict, Code: code, PublicMsg: publicMsg}
}

// Wrap hides an internal error behind a generic message.
func Wrap(err error) *AppError {
	if isNil(err) {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return &AppError{Kind: Internal, Code: "INTERNAL_ERROR", PublicMsg: genericMessage, Err: err}
}

// FromDB classifies a storage error. Missing records become notFound,
// timeouts and connection failures become Retryable, anything else Internal.
func FromDB(err error, notFound *AppError) *AppError {
	if isNil(err) {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	if notFound != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	if IsTransient(err) {
		return &AppError{Kind: Retryable, Code: "STORE_UNAVAILABLE", PublicMsg: "The service is temporarily unavailable, please retry", Err: err}
	}
	return &AppError{Kind: Internal, Code: "DATABASE_ERROR", PublicMsg: genericMessage, Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// As finds the AppError in err's chain. A typed nil counts as absent.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// HTTPStatus maps an error to a response code. Conflicts answer 400 like
// any other rejected request; the kind and code tell them apart.
func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		switch ae.Kind {
		case Invalid, Conflict:
			return http.StatusBadRequest
		case Unauthorized:
			return http.StatusUnauthorized
		case Forbidden:
			return http.StatusForbidden
		case NotFound:
			return http.StatusNotFound
		case Retryable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return genericMessage
}

func Code(err error) string {
	if ae, ok := As(err); ok && ae.Code != "" {
		return ae.Code
	}
	return "INTERNAL_ERROR"
}
