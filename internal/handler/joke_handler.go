package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/middleware"
	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/dafibh/jokebox/jokebox-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// JokeHandler handles joke-related HTTP requests
type JokeHandler struct {
	jokeService *service.JokeService
}

// NewJokeHandler creates a new JokeHandler
func NewJokeHandler(jokeService *service.JokeService) *JokeHandler {
	return &JokeHandler{jokeService: jokeService}
}

// UpdateJokeRequest is a partial update; absent fields are left untouched
type UpdateJokeRequest struct {
	Rating    *int  `json:"rating,omitempty"`
	IsDeleted *bool `json:"isDeleted,omitempty"`
}

// JokeResponse represents a joke in API responses
type JokeResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	Rating    int    `json:"rating"`
	Tags      string `json:"tags"`
	IsDeleted bool   `json:"isDeleted"`
	CreatedAt string `json:"createdAt"`
}

// JokeListResponse is one page of jokes plus the exact row count of the filter
type JokeListResponse struct {
	Items []JokeResponse `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// JokeVersionResponse represents a joke version in API responses
type JokeVersionResponse struct {
	ID        int64  `json:"id"`
	JokeID    int64  `json:"jokeId"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// RestoreAllResponse reports how many jokes left the trash
type RestoreAllResponse struct {
	Restored int64 `json:"restored"`
}

// JokeStatsResponse represents collection statistics
type JokeStatsResponse struct {
	ActiveCount   int64  `json:"activeCount"`
	DeletedCount  int64  `json:"deletedCount"`
	AverageRating string `json:"averageRating"`
}

// ListJokes handles GET /api/v1/jokes
func (h *JokeHandler) ListJokes(c echo.Context) error {
	var fieldErrors []problem.FieldError

	deleted := false
	if raw := c.QueryParam("deleted"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			fieldErrors = append(fieldErrors, problem.FieldError{Field: "deleted", Message: "Must be true or false"})
		}
		deleted = parsed
	}

	page, err := intQueryParam(c, "page", 0)
	if err != nil || page < 0 {
		fieldErrors = append(fieldErrors, problem.FieldError{Field: "page", Message: "Must be a non-negative integer"})
	}

	size, err := intQueryParam(c, "size", domain.DefaultPageSize)
	if err != nil || size <= 0 {
		fieldErrors = append(fieldErrors, problem.FieldError{Field: "size", Message: "Must be a positive integer"})
	}

	if len(fieldErrors) > 0 {
		return problem.Validation(c, "Invalid query parameters", fieldErrors...)
	}

	result, err := h.jokeService.ListJokes(c.Request().Context(), domain.JokeFilter{Deleted: deleted}, page, size)
	if err != nil {
		return problem.FromError(c, err, "Failed to list jokes")
	}

	response := JokeListResponse{
		Items: make([]JokeResponse, len(result.Items)),
		Total: result.Total,
		Page:  result.Page,
		Size:  result.Size,
	}
	for i, joke := range result.Items {
		response.Items[i] = toJokeResponse(joke)
	}

	return c.JSON(http.StatusOK, response)
}

// GetJoke handles GET /api/v1/jokes/:id
func (h *JokeHandler) GetJoke(c echo.Context) error {
	id, err := parseJokeID(c)
	if err != nil {
		return problem.Validation(c, "Invalid joke ID")
	}

	joke, err := h.jokeService.GetJoke(c.Request().Context(), id)
	if err != nil {
		return problem.FromError(c, err, "Failed to get joke")
	}

	return c.JSON(http.StatusOK, toJokeResponse(joke))
}

// UpdateJoke handles PATCH /api/v1/jokes/:id
func (h *JokeHandler) UpdateJoke(c echo.Context) error {
	id, err := parseJokeID(c)
	if err != nil {
		return problem.Validation(c, "Invalid joke ID")
	}

	var req UpdateJokeRequest
	if err := c.Bind(&req); err != nil {
		return problem.Validation(c, "Invalid request body")
	}

	patch := domain.JokePatch{Rating: req.Rating, IsDeleted: req.IsDeleted}
	joke, err := h.jokeService.UpdateJoke(c.Request().Context(), id, patch)
	if err != nil {
		return problem.FromError(c, err, "Failed to update joke")
	}

	log.Info().
		Int64("joke_id", id).
		Int("rating", joke.Rating).
		Bool("is_deleted", joke.IsDeleted).
		Str("editor", middleware.GetEditor(c)).
		Msg("Joke updated")

	return c.JSON(http.StatusOK, toJokeResponse(joke))
}

// RestoreAll handles POST /api/v1/jokes/restore-all
func (h *JokeHandler) RestoreAll(c echo.Context) error {
	restored, err := h.jokeService.RestoreAll(c.Request().Context())
	if err != nil {
		return problem.FromError(c, err, "Failed to restore jokes")
	}

	log.Info().Int64("restored", restored).Str("editor", middleware.GetEditor(c)).Msg("Trash restored")

	return c.JSON(http.StatusOK, RestoreAllResponse{Restored: restored})
}

// ListVersions handles GET /api/v1/jokes/:id/versions
func (h *JokeHandler) ListVersions(c echo.Context) error {
	id, err := parseJokeID(c)
	if err != nil {
		return problem.Validation(c, "Invalid joke ID")
	}

	versions, err := h.jokeService.ListVersions(c.Request().Context(), id)
	if err != nil {
		return problem.FromError(c, err, "Failed to list joke versions")
	}

	response := make([]JokeVersionResponse, len(versions))
	for i, v := range versions {
		response[i] = JokeVersionResponse{
			ID:        v.ID,
			JokeID:    v.JokeID,
			Text:      v.Text,
			Kind:      v.Kind,
			Timestamp: v.Timestamp.Format(time.RFC3339),
		}
	}

	return c.JSON(http.StatusOK, response)
}

// GetStats handles GET /api/v1/jokes/stats
func (h *JokeHandler) GetStats(c echo.Context) error {
	stats, err := h.jokeService.Stats(c.Request().Context())
	if err != nil {
		return problem.FromError(c, err, "Failed to get joke stats")
	}

	return c.JSON(http.StatusOK, JokeStatsResponse{
		ActiveCount:   stats.ActiveCount,
		DeletedCount:  stats.DeletedCount,
		AverageRating: stats.AverageRating.StringFixed(2),
	})
}

func parseJokeID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func intQueryParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func toJokeResponse(joke *domain.Joke) JokeResponse {
	return JokeResponse{
		ID:        joke.ID,
		Text:      joke.Text,
		Status:    joke.Status,
		Rating:    joke.Rating,
		Tags:      joke.Tags,
		IsDeleted: joke.IsDeleted,
		CreatedAt: joke.CreatedAt.Format(time.RFC3339Nano),
	}
}
