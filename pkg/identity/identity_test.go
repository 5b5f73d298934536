// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator() *StaticValidator {
	return &StaticValidator{
		Tokens: map[string]Identity{
			"user-token": {UserID: "uid-1", Email: "budi@example.com", Name: "Budi"},
			"boot-token": {UserID: "svc-bootstrap"},
		},
	}
}

func TestResolve_CredentialFirst(t *testing.T) {
	r := NewResolver(testValidator(), "boot-token", true)

	id := r.Resolve(context.Background(), "user-token")

	require.False(t, id.Failed())
	assert.Equal(t, "uid-1", id.UserID)
	assert.Equal(t, MethodCredential, id.Method)
	assert.Equal(t, "budi@example.com", id.Email)
}

func TestResolve_BootstrapFallback(t *testing.T) {
	r := NewResolver(testValidator(), "boot-token", true)

	t.Run("no credential supplied", func(t *testing.T) {
		id := r.Resolve(context.Background(), "")
		require.False(t, id.Failed())
		assert.Equal(t, "svc-bootstrap", id.UserID)
		assert.Equal(t, MethodBootstrap, id.Method)
	})

	t.Run("invalid credential supplied", func(t *testing.T) {
		id := r.Resolve(context.Background(), "garbage")
		require.False(t, id.Failed())
		assert.Equal(t, MethodBootstrap, id.Method)
	})
}

func TestResolve_AnonymousFallback(t *testing.T) {
	r := NewResolver(testValidator(), "", true)

	id := r.Resolve(context.Background(), "garbage")

	require.False(t, id.Failed())
	assert.True(t, id.Anonymous())
	assert.True(t, strings.HasPrefix(id.UserID, "anon-"))

	// Anonymous principals are unique per resolution.
	other := r.Resolve(context.Background(), "")
	assert.NotEqual(t, id.UserID, other.UserID)
}

func TestResolve_AllStepsFail(t *testing.T) {
	r := NewResolver(testValidator(), "stale-boot-token", false)

	first := r.Resolve(context.Background(), "garbage")
	second := r.Resolve(context.Background(), "garbage")

	require.True(t, first.Failed())
	require.True(t, second.Failed())
	assert.NotEmpty(t, first.CorrelationID)
	assert.True(t, strings.HasPrefix(first.UserID, "auth-failed-"))

	// Each failure gets its own correlation id.
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestResolve_NilValidator(t *testing.T) {
	r := NewResolver(nil, "boot-token", true)

	id := r.Resolve(context.Background(), "user-token")

	// Without a validator the only usable step is anonymous.
	assert.Equal(t, MethodAnonymous, id.Method)
}
