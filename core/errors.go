package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthenticated = "RESIDENT_UNAUTHENTICATED"
	ErrorAlreadySaving   = "RESIDENT_ALREADY_SAVING"
	ErrorUnauthorized    = "RESIDENT_UNAUTHORIZED"
	ErrorValidation      = "RESIDENT_VALIDATION"
	ErrorUnavailable     = "RESIDENT_UNAVAILABLE"
	ErrorBadInput        = "RESIDENT_BAD_INPUT"
	ErrorInternal        = "RESIDENT_INTERNAL_ERROR"
)

var (
	ErrUnauthenticated = errors.New("resident: not logged in")
	ErrAlreadySaving   = errors.New("resident: save already in progress")
	ErrUnauthorized    = errors.New("resident: credential rejected")
	ErrValidation      = errors.New("resident: profile rejected")
	ErrUnavailable     = errors.New("resident: profile service unavailable")
	ErrManagerClosed   = errors.New("resident: manager is closed")
)

type ErrorKind string

const (
	ErrorKindUnknown         ErrorKind = ""
	ErrorKindUnauthenticated ErrorKind = "unauthenticated"
	ErrorKindAlreadySaving   ErrorKind = "already_saving"
	ErrorKindUnauthorized    ErrorKind = "unauthorized"
	ErrorKindValidation      ErrorKind = "validation"
	ErrorKindUnavailable     ErrorKind = "unavailable"
)

// ErrorKindOf classifies err into the session error taxonomy.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return ErrorKindUnauthenticated
	case errors.Is(err, ErrAlreadySaving):
		return ErrorKindAlreadySaving
	case errors.Is(err, ErrUnauthorized):
		return ErrorKindUnauthorized
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrUnavailable):
		return ErrorKindUnavailable
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return ErrorKindUnknown
	}
	switch rich.TextCode {
	case ErrorUnauthenticated:
		return ErrorKindUnauthenticated
	case ErrorAlreadySaving:
		return ErrorKindAlreadySaving
	case ErrorUnauthorized:
		return ErrorKindUnauthorized
	case ErrorValidation:
		return ErrorKindValidation
	case ErrorUnavailable:
		return ErrorKindUnavailable
	default:
		return ErrorKindUnknown
	}
}

func NewUnauthenticatedError() *goerrors.Error {
	return newTaxonomyError("not logged in", goerrors.CategoryAuth, http.StatusUnauthorized, ErrorUnauthenticated, ErrUnauthenticated, nil)
}

func NewAlreadySavingError() *goerrors.Error {
	return newTaxonomyError("a profile save is already in progress", goerrors.CategoryConflict, http.StatusConflict, ErrorAlreadySaving, ErrAlreadySaving, nil)
}

// NewTokenError reports a failed silent token request (consent required,
// provider unreachable). The session treats it as unauthenticated.
func NewTokenError(cause error) *goerrors.Error {
	return newTaxonomyError("identity provider token request failed", goerrors.CategoryAuth, http.StatusUnauthorized, ErrorUnauthenticated, ErrUnauthenticated, cause)
}

func NewUnauthorizedError(cause error, status int) *goerrors.Error {
	if status == 0 {
		status = http.StatusForbidden
	}
	return newTaxonomyError("profile service rejected the credential", goerrors.CategoryAuthz, status, ErrorUnauthorized, ErrUnauthorized, cause)
}

func NewValidationError(cause error, status int, fields ...goerrors.FieldError) *goerrors.Error {
	if status == 0 {
		status = http.StatusUnprocessableEntity
	}
	err := newTaxonomyError("profile service rejected the payload", goerrors.CategoryValidation, status, ErrorValidation, ErrValidation, cause)
	if len(fields) > 0 {
		err.ValidationErrors = append(goerrors.ValidationErrors(nil), fields...)
	}
	return err
}

func NewUnavailableError(cause error, status int) *goerrors.Error {
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return newTaxonomyError("profile service unavailable", goerrors.CategoryExternal, status, ErrorUnavailable, ErrUnavailable, cause)
}

func newTaxonomyError(
	message string,
	category goerrors.Category,
	status int,
	textCode string,
	sentinel error,
	cause error,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
	if cause != nil {
		err.Source = errors.Join(sentinel, cause)
	} else {
		err.Source = sentinel
	}
	return err
}

func residentErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureResidentErrorEnvelope(richErr)
	}

	switch ErrorKindOf(err) {
	case ErrorKindUnauthenticated:
		return newTaxonomyError(err.Error(), goerrors.CategoryAuth, http.StatusUnauthorized, ErrorUnauthenticated, err, nil)
	case ErrorKindAlreadySaving:
		return newTaxonomyError(err.Error(), goerrors.CategoryConflict, http.StatusConflict, ErrorAlreadySaving, err, nil)
	case ErrorKindUnauthorized:
		return newTaxonomyError(err.Error(), goerrors.CategoryAuthz, http.StatusForbidden, ErrorUnauthorized, err, nil)
	case ErrorKindValidation:
		return newTaxonomyError(err.Error(), goerrors.CategoryValidation, http.StatusUnprocessableEntity, ErrorValidation, err, nil)
	case ErrorKindUnavailable:
		return newTaxonomyError(err.Error(), goerrors.CategoryExternal, http.StatusServiceUnavailable, ErrorUnavailable, err, nil)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		mapped := goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error())
		return ensureResidentErrorEnvelope(mapped)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureResidentErrorEnvelope(mapped)
}

func ensureResidentErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = residentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultResidentTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultResidentTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryAuth:
		return ErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorAlreadySaving
	case goerrors.CategoryExternal:
		return ErrorUnavailable
	default:
		return ErrorInternal
	}
}

func residentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
