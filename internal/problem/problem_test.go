package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{"not found", domain.ErrJokeNotFound, http.StatusNotFound, TypeNotFound, "Joke not found"},
		{"wrapped not found", fmt.Errorf("get joke 4: %w", domain.ErrJokeNotFound), http.StatusNotFound, TypeNotFound, "Joke not found"},
		{"empty patch", domain.ErrEmptyPatch, http.StatusBadRequest, TypeValidation, "Validation failed"},
		{"invalid input", fmt.Errorf("%w: size must be at most 100", domain.ErrInvalidInput), http.StatusBadRequest, TypeValidation, "invalid input: size must be at most 100"},
		{"storage failure", errors.New("connection reset by peer"), http.StatusInternalServerError, TypeInternal, "Failed to do the thing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/jokes/4", nil), rec)

			require.NoError(t, FromError(c, tt.err, "Failed to do the thing"))

			var body Details
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantType, body.Type)
			assert.Equal(t, tt.wantDetail, body.Detail)
			assert.Equal(t, "/api/v1/jokes/4", body.Instance)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestValidation_FieldErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/jokes", nil), rec)

	require.NoError(t, Validation(c, "Invalid query parameters",
		FieldError{Field: "page", Message: "Must be a non-negative integer"},
		FieldError{Field: "size", Message: "Must be a positive integer"},
	))

	var body Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Error", body.Title)
	require.Len(t, body.Errors, 2)
	assert.Equal(t, "size", body.Errors[1].Field)
}

func TestWrite_OmitsEmptyErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPatch, "/api/v1/jokes/1", nil), rec)

	require.NoError(t, Unauthorized(c, "Missing authorization header"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"errors"`)
}
