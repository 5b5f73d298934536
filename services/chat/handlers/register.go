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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/storage"
)

type RegisterUserRequest struct {
	FirebaseUID string `json:"firebaseUid" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Name        string `json:"name"`
}

// RegisterUser upserts a user profile after a client-side sign-in. The
// call is idempotent; re-registering refreshes email and name but keeps
// the original creation time.
func RegisterUser(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "firebaseUid and email are required"})
			return
		}
		if strings.TrimSpace(req.FirebaseUID) == "" || strings.TrimSpace(req.Email) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "firebaseUid and email are required"})
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = datatypes.DefaultUserName
		}
		profile := datatypes.UserProfile{
			FirebaseUID: strings.TrimSpace(req.FirebaseUID),
			Email:       strings.TrimSpace(req.Email),
			Name:        name,
		}
		if err := store.SaveUser(c.Request.Context(), profile); err != nil {
			slog.Error("failed to save user profile",
				"firebaseUid", profile.FirebaseUID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
			return
		}

		slog.Info("user registered", "firebaseUid", profile.FirebaseUID)
		c.JSON(http.StatusOK, gin.H{
			"user":    profile,
			"message": "user registered",
		})
	}
}
