package middleware

import (
	"context"

	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderClientID identifies the calling client installation
const HeaderClientID = "X-Client-ID"

// ClientIDKey is the context key for the parsed client id
const ClientIDKey contextKey = "client_id"

// ClientID parses the optional X-Client-ID header into the request context.
// A malformed id is rejected; a missing one leaves uuid.Nil.
func ClientID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderClientID)
			if raw == "" {
				return next(c)
			}

			clientID, err := uuid.Parse(raw)
			if err != nil {
				return problem.Validation(c, "Invalid X-Client-ID header")
			}

			ctx := context.WithValue(c.Request().Context(), ClientIDKey, clientID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// GetClientID extracts the client id from the context
func GetClientID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(ClientIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
