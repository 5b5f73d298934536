// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/middleware"
	"github.com/medicare-health/medicare-server/services/chat/session"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

type SendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message" binding:"required"`
}

type SendMessageResponse struct {
	SessionID string            `json:"sessionId"`
	Reply     datatypes.Message `json:"reply"`
}

// resolvedUser returns the caller identity. Requests whose identity
// resolution failed outright are rejected with 401; a failed identity
// must never reach the store.
func resolvedUser(c *gin.Context) (identity.Identity, bool) {
	id, ok := middleware.RequireIdentity(c)
	if !ok {
		return identity.Identity{}, false
	}
	if id.Failed() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return identity.Identity{}, false
	}
	return id, true
}

// SendMessage runs one synchronous chat turn over REST. An empty
// sessionId starts a new session; the response carries the id so the
// client can continue it.
func SendMessage(store storage.Store, ai llm.AnalysisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := resolvedUser(c)
		if !ok {
			return
		}

		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		reply, err := session.RunTurn(c.Request.Context(), store, ai,
			id.UserID, sessionID, req.Message)
		if errors.Is(err, session.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}
		if err != nil {
			slog.Error("chat turn failed",
				"userId", id.UserID, "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
			return
		}

		c.JSON(http.StatusOK, SendMessageResponse{
			SessionID: sessionID,
			Reply:     reply,
		})
	}
}
