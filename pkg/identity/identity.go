// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package identity resolves a stable user identity before any session work
// can proceed.
//
// # Resolution Flow
//
// The resolver attempts, in order:
//
//	Request credential
//	   │
//	   ├─► validator.Validate(ctx, credential)   (a) authenticated principal
//	   │
//	   ├─► validator.Validate(ctx, bootstrap)    (b) pre-provisioned token
//	   │
//	   └─► anonymous principal                   (c) fallback
//
// If every step fails, Resolve returns an identity in the failed state
// carrying a fresh correlation id, so repeated failures are distinguishable
// in logs. Resolve never returns an error: callers must treat identity
// resolution as fallible and check Identity.Failed().
//
// Resolution happens once per connection lifecycle; there are no retries at
// this layer.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Method records how an identity was obtained.
type Method string

const (
	// MethodCredential means a caller-supplied credential validated.
	MethodCredential Method = "credential"

	// MethodBootstrap means the deployment's pre-provisioned token was
	// exchanged.
	MethodBootstrap Method = "bootstrap"

	// MethodAnonymous means an anonymous principal was minted.
	MethodAnonymous Method = "anonymous"

	// MethodFailed means every resolution step failed.
	MethodFailed Method = "failed"
)

// ErrInvalidCredential is returned by validators when a credential is
// present but does not map to a principal.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is an opaque, stable user identity. It is created once per
// sign-in or anonymous bootstrap and never mutated afterwards.
type Identity struct {
	// UserID is the unique principal identifier. For failed resolutions
	// it is "auth-failed-" plus the correlation id.
	UserID string `json:"userId"`

	// Email and Name are only set for credentialed principals.
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// Method records which resolution step produced this identity.
	Method Method `json:"method"`

	// CorrelationID is set only when Method is MethodFailed. It is a
	// fresh uuid per failure.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Failed reports whether identity resolution failed. A failed identity must
// surface as a blocking error to the user, not degrade silently.
func (id Identity) Failed() bool {
	return id.Method == MethodFailed
}

// Anonymous reports whether this is an anonymous fallback principal.
func (id Identity) Anonymous() bool {
	return id.Method == MethodAnonymous
}

// Validator validates an authentication credential and returns the
// principal it belongs to.
//
// Implementations validate tokens against an identity provider (Firebase
// Auth, Okta, ...). The default StaticValidator accepts a fixed token map
// and is what local deployments and tests use.
type Validator interface {
	// Validate returns the identity for the credential, or an error
	// (ErrInvalidCredential for a well-formed but unknown token).
	Validate(ctx context.Context, credential string) (Identity, error)
}

// StaticValidator validates credentials against a fixed token→identity map.
type StaticValidator struct {
	// Tokens maps credential values to identities. The Method field of
	// the mapped identity is overwritten by the resolver.
	Tokens map[string]Identity
}

func (v *StaticValidator) Validate(_ context.Context, credential string) (Identity, error) {
	if id, ok := v.Tokens[credential]; ok {
		return id, nil
	}
	return Identity{}, ErrInvalidCredential
}

var _ Validator = (*StaticValidator)(nil)

// Resolver implements the credential → bootstrap → anonymous chain.
type Resolver struct {
	validator Validator

	// bootstrapToken is the deployment-provided credential, empty when
	// the environment supplies none.
	bootstrapToken string

	// allowAnonymous enables the anonymous fallback. When disabled, a
	// request without a valid credential resolves to the failed state.
	allowAnonymous bool
}

// NewResolver creates a Resolver. validator may be nil, in which case
// credentialed resolution always falls through to the next step.
func NewResolver(validator Validator, bootstrapToken string, allowAnonymous bool) *Resolver {
	return &Resolver{
		validator:      validator,
		bootstrapToken: bootstrapToken,
		allowAnonymous: allowAnonymous,
	}
}

// Resolve obtains an identity for the given request credential (may be
// empty). It never returns an error; check Identity.Failed() instead.
func (r *Resolver) Resolve(ctx context.Context, credential string) Identity {
	credential = strings.TrimSpace(credential)

	if r.validator != nil && credential != "" {
		id, err := r.validator.Validate(ctx, credential)
		if err == nil {
			id.Method = MethodCredential
			return id
		}
		slog.Warn("credential validation failed, falling back",
			"error", err)
	}

	if r.validator != nil && r.bootstrapToken != "" {
		id, err := r.validator.Validate(ctx, r.bootstrapToken)
		if err == nil {
			id.Method = MethodBootstrap
			return id
		}
		slog.Warn("bootstrap token exchange failed, falling back",
			"error", err)
	}

	if r.allowAnonymous {
		id := Identity{
			UserID: "anon-" + uuid.New().String(),
			Method: MethodAnonymous,
		}
		slog.Info("resolved anonymous identity", "userId", id.UserID)
		return id
	}

	correlationID := uuid.New().String()
	slog.Error("identity resolution failed", "correlationId", correlationID)
	return Identity{
		UserID:        "auth-failed-" + correlationID,
		Method:        MethodFailed,
		CorrelationID: correlationID,
	}
}
