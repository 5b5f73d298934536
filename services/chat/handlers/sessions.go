// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/storage"
)

// ListSessions returns the caller's most recent sessions, newest
// activity first. The optional limit query parameter caps the count.
func ListSessions(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := resolvedUser(c)
		if !ok {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		sessions, err := store.ListSessions(c.Request.Context(), id.UserID, limit)
		if err != nil {
			slog.Error("failed to list sessions", "userId", id.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		if sessions == nil {
			sessions = make([]datatypes.Session, 0)
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

// SessionHistory returns the full ordered message log of one session.
func SessionHistory(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := resolvedUser(c)
		if !ok {
			return
		}
		sessionID := c.Param("sessionId")

		messages, err := store.Messages(c.Request.Context(), id.UserID, sessionID)
		if err != nil {
			slog.Error("failed to read session history",
				"userId", id.UserID, "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
			return
		}
		if messages == nil {
			messages = make([]datatypes.Message, 0)
		}
		c.JSON(http.StatusOK, gin.H{
			"sessionId": sessionID,
			"messages":  messages,
		})
	}
}
