// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the chat service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer credential from the
// Authorization header and resolves it through the identity chain:
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract credential from "Authorization: Bearer <token>"
//	   │
//	   ├─► resolver.Resolve(ctx, credential)
//	   │
//	   └─► Store Identity in context
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// Resolution never rejects a request: a missing or invalid credential
// falls through to the anonymous or failed-auth identity, which still
// carries a usable user id. Handlers that must not serve failed-auth
// users check Identity.Failed themselves.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicare-health/medicare-server/pkg/identity"
)

// =============================================================================
// Context Keys
// =============================================================================

// identityKey is the context key for storing the resolved Identity.
const identityKey = "medicare_identity"

// =============================================================================
// Context Helpers
// =============================================================================

// SetIdentity stores the resolved identity in the Gin context. Called
// by AuthMiddleware; exported for handler tests.
func SetIdentity(c *gin.Context, id identity.Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the resolved identity from the Gin context.
//
// The second return is false when AuthMiddleware did not run on this
// route. Handlers treat that as a server misconfiguration, not an auth
// failure.
func GetIdentity(c *gin.Context) (identity.Identity, bool) {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(identity.Identity); ok {
			return id, true
		}
	}
	return identity.Identity{}, false
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that resolves the caller's
// identity and stores it in the context for downstream handlers.
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := extractBearerToken(c)
		id := resolver.Resolve(c.Request.Context(), credential)
		SetIdentity(c, id)
		c.Next()
	}
}

// RequireIdentity aborts with 500 when no identity is present. Used on
// routes that are only ever mounted behind AuthMiddleware.
func RequireIdentity(c *gin.Context) (identity.Identity, bool) {
	id, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "identity middleware not configured",
		})
		return identity.Identity{}, false
	}
	return id, true
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken parses the Authorization header expecting the
// format "Bearer <token>". The prefix is case-insensitive per RFC 7235.
// Returns empty string if the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
