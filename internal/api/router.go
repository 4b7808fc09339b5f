// Package api exposes backtests, grid searches and run history over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"TradeSentinel/internal/api/handlers"
	"TradeSentinel/internal/api/middleware"
)

// NewRouter builds the HTTP handler, CORS included.
func NewRouter(env *handlers.Env, allowedOrigins []string) http.Handler {
	router := gin.New()
	router.Use(middleware.Logger(env.Logger))
	router.Use(middleware.ErrorHandler(env.Logger))

	backtestHandler := handlers.NewBacktestHandler(env)
	optimizeHandler := handlers.NewOptimizeHandler(env)
	runsHandler := handlers.NewRunsHandler(env)

	router.GET("/health", handlers.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtestHandler.RunBacktest)
		api.POST("/optimize", optimizeHandler.RunOptimize)
		api.GET("/runs/:id", runsHandler.GetRun)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
	return c.Handler(router)
}
