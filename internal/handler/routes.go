package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes.
// mutationGuards wrap only the routes that write (auth, rate limiting).
func RegisterRoutes(e *echo.Echo, jokeHandler *JokeHandler, wsHandler *WebSocketHandler, mutationGuards ...echo.MiddlewareFunc) {
	api := e.Group("/api/v1")

	// Joke routes (public reads)
	jokes := api.Group("/jokes")
	jokes.GET("", jokeHandler.ListJokes)
	jokes.GET("/stats", jokeHandler.GetStats)
	jokes.GET("/:id", jokeHandler.GetJoke)
	jokes.GET("/:id/versions", jokeHandler.ListVersions)

	// Joke mutations (guarded)
	jokes.PATCH("/:id", jokeHandler.UpdateJoke, mutationGuards...)
	jokes.POST("/restore-all", jokeHandler.RestoreAll, mutationGuards...)

	// Change feed
	if wsHandler != nil {
		e.GET("/ws", wsHandler.HandleWS)
	}
}
