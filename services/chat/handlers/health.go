// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the Gin HTTP and WebSocket handlers for the
// chat service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness plus which store backend is serving. A
// service running on the unavailable store is alive but degraded.
func Health(storeType string, degraded bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		if degraded {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status": status,
			"store":  storeType,
		})
	}
}
