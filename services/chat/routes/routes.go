// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/services/chat/handlers"
	"github.com/medicare-health/medicare-server/services/chat/middleware"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

// Options carries the wired dependencies for route setup.
type Options struct {
	Store     storage.Store
	AI        llm.AnalysisClient
	Resolver  *identity.Resolver
	StoreType string

	// StoreDegraded marks a deployment running on the unavailable
	// fallback store.
	StoreDegraded bool

	// RateLimit guards the chat endpoints; nil disables limiting.
	RateLimit *middleware.RateLimiter
}

func SetupRoutes(router *gin.Engine, opts Options) {
	router.GET("/health", handlers.Health(opts.StoreType, opts.StoreDegraded))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/auth/register-user", handlers.RegisterUser(opts.Store))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.Resolver))
	if opts.RateLimit != nil {
		v1.Use(opts.RateLimit.Middleware())
	}
	{
		v1.POST("/chat/send", handlers.SendMessage(opts.Store, opts.AI))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(opts.Store, opts.AI, opts.Resolver))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(opts.Store))
			sessions.GET("/:sessionId/history", handlers.SessionHistory(opts.Store))
		}
	}
}
