// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/medicare-health/medicare-server/pkg/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(resolver *identity.Resolver) (*gin.Engine, *identity.Identity) {
	var captured identity.Identity
	router := gin.New()
	router.Use(AuthMiddleware(resolver))
	router.GET("/whoami", func(c *gin.Context) {
		id, ok := RequireIdentity(c)
		if !ok {
			return
		}
		captured = id
		c.JSON(http.StatusOK, gin.H{"userId": id.UserID})
	})
	return router, &captured
}

func TestAuthMiddleware_ValidCredential(t *testing.T) {
	resolver := identity.NewResolver(&identity.StaticValidator{
		Tokens: map[string]identity.Identity{
			"good-token": {UserID: "uid-42", Email: "ani@example.com"},
		},
	}, "", true)
	router, captured := newAuthRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uid-42", captured.UserID)
	assert.Equal(t, identity.MethodCredential, captured.Method)
}

func TestAuthMiddleware_MissingCredentialFallsThrough(t *testing.T) {
	resolver := identity.NewResolver(nil, "", true)
	router, captured := newAuthRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Requests are never rejected; they land on an anonymous identity.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, identity.MethodAnonymous, captured.Method)
	assert.NotEmpty(t, captured.UserID)
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"standard", "Bearer abc123", "abc123"},
		{"case insensitive", "bearer ABC123", "ABC123"},
		{"missing", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.want, extractBearerToken(c))
		})
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	resolver := identity.NewResolver(&identity.StaticValidator{
		Tokens: map[string]identity.Identity{
			"same-user": {UserID: "uid-1"},
		},
	}, "", true)
	rl := NewRateLimiter(1, 2)

	router := gin.New()
	router.Use(AuthMiddleware(resolver), rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer same-user")
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	// Burst of two passes, the third is throttled.
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
