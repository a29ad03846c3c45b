// Package problem writes RFC 7807 problem responses for the HTTP API.
package problem

import (
	"errors"
	"net/http"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Problem types
const (
	TypeValidation   = "https://jokebox.app/errors/validation"
	TypeNotFound     = "https://jokebox.app/errors/not-found"
	TypeUnauthorized = "https://jokebox.app/errors/unauthorized"
	TypeForbidden    = "https://jokebox.app/errors/forbidden"
	TypeRateLimit    = "https://jokebox.app/errors/rate-limit"
	TypeInternal     = "https://jokebox.app/errors/internal"
)

// Details is the response body
type Details struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid input
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Write sends a problem response
func Write(c echo.Context, status int, problemType, title, detail string, fields ...FieldError) error {
	return c.JSON(status, Details{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   fields,
	})
}

func Validation(c echo.Context, detail string, fields ...FieldError) error {
	return Write(c, http.StatusBadRequest, TypeValidation, "Validation Error", detail, fields...)
}

func NotFound(c echo.Context, detail string) error {
	return Write(c, http.StatusNotFound, TypeNotFound, "Not Found", detail)
}

func Unauthorized(c echo.Context, detail string) error {
	return Write(c, http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", detail)
}

func Forbidden(c echo.Context, detail string) error {
	return Write(c, http.StatusForbidden, TypeForbidden, "Forbidden", detail)
}

func TooManyRequests(c echo.Context, detail string) error {
	return Write(c, http.StatusTooManyRequests, TypeRateLimit, "Rate Limit Exceeded", detail)
}

func Internal(c echo.Context, detail string) error {
	return Write(c, http.StatusInternalServerError, TypeInternal, "Internal Server Error", detail)
}

// FromError answers with the problem matching a service error. Anything
// unrecognized is logged and reported as an internal error with detail
// fallback, so storage errors never reach the client.
func FromError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrJokeNotFound):
		return NotFound(c, "Joke not found")
	case errors.Is(err, domain.ErrEmptyPatch):
		return Validation(c, "Validation failed", FieldError{
			Field:   "rating",
			Message: "At least one of rating or isDeleted is required",
		})
	case errors.Is(err, domain.ErrInvalidInput):
		return Validation(c, err.Error())
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg(fallback)
	return Internal(c, fallback)
}
