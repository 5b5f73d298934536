// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage persists session message logs and session summaries.
//
// Three backends implement the same Store contract:
//
//   - memory: in-process maps, for tests and lightweight mode
//   - badger: embedded persistent KV (BadgerDB)
//   - firestore: Google Cloud Firestore with native snapshot listeners
//
// # Ordering Contract
//
// Within a session, messages are totally ordered by store-assigned
// timestamp ascending with store-assigned id as the tiebreak. Every
// subscription delivery carries the full re-read ordered snapshot, never an
// incremental diff.
package storage

import (
	"context"
	"errors"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
)

var (
	// ErrUnavailable is returned (or logged, for Append) when the store
	// was never initialized. Callers degrade to empty views rather than
	// failing.
	ErrUnavailable = errors.New("message store unavailable")

	// ErrSummaryUpsert wraps a session summary write failure. The
	// message append before it succeeded; callers treat this as a
	// non-fatal warning, never as a turn failure.
	ErrSummaryUpsert = errors.New("session summary upsert failed")
)

// OnUpdate receives the full ordered message snapshot of a session. It is
// invoked once immediately on subscribe and again after every append to the
// session, from any writer.
type OnUpdate func(messages []datatypes.Message)

// Unsubscribe stops delivery and releases the underlying registration.
// Implementations are idempotent: calling it more than once is safe.
type Unsubscribe func()

// Store is the session-scoped message log plus the per-user session
// directory.
type Store interface {
	// Append writes msg (Text and Sender set; ID and Timestamp are
	// store-assigned) to the session log, then merge-upserts the session
	// summary: lastActivity=now, createdAt set once, and the title rule:
	// a user message derives the title, an AI message only fills the
	// placeholder when no title exists yet. A summary failure after a
	// successful message write returns an error wrapping
	// ErrSummaryUpsert.
	Append(ctx context.Context, userID, sessionID string, msg datatypes.Message) error

	// Messages returns the session's ordered log (timestamp ascending,
	// id tiebreak).
	Messages(ctx context.Context, userID, sessionID string) ([]datatypes.Message, error)

	// ListSessions returns the user's session summaries ordered by
	// lastActivity descending. limit <= 0 uses DefaultSessionLimit.
	ListSessions(ctx context.Context, userID string, limit int) ([]datatypes.Session, error)

	// Subscribe registers onUpdate for the session (see OnUpdate for the
	// delivery contract).
	Subscribe(userID, sessionID string, onUpdate OnUpdate) (Unsubscribe, error)

	// SaveUser upserts a user profile (register-user flow).
	SaveUser(ctx context.Context, profile datatypes.UserProfile) error

	// Close releases backend resources.
	Close() error
}

// DefaultSessionLimit caps the session directory view.
const DefaultSessionLimit = 10

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultSessionLimit {
		return DefaultSessionLimit
	}
	return limit
}

// applyTitle implements the shared summary title rule. existing is the
// current title ("" when the summary is new).
func applyTitle(existing string, msg datatypes.Message) string {
	if msg.Sender == datatypes.SenderUser {
		return datatypes.DeriveTitle(msg.Text)
	}
	if existing == "" {
		return datatypes.PlaceholderTitle
	}
	return existing
}
