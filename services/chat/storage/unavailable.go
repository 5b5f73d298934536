// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"log/slog"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
)

// UnavailableStore is the degraded backend used when store initialization
// failed. Appends no-op with a logged error, reads return empty results,
// and subscriptions deliver a single empty snapshot. Nothing fails: clients
// see an empty view instead of errors.
type UnavailableStore struct{}

var _ Store = (*UnavailableStore)(nil)

func (UnavailableStore) Append(_ context.Context, userID, sessionID string, msg datatypes.Message) error {
	slog.Error("message store unavailable, dropping append",
		"userId", userID, "sessionId", sessionID, "sender", msg.Sender)
	return nil
}

func (UnavailableStore) Messages(context.Context, string, string) ([]datatypes.Message, error) {
	return nil, nil
}

func (UnavailableStore) ListSessions(context.Context, string, int) ([]datatypes.Session, error) {
	return nil, nil
}

func (UnavailableStore) Subscribe(_, _ string, onUpdate OnUpdate) (Unsubscribe, error) {
	onUpdate(nil)
	return func() {}, nil
}

func (UnavailableStore) SaveUser(_ context.Context, profile datatypes.UserProfile) error {
	slog.Error("message store unavailable, dropping user profile",
		"firebaseUid", profile.FirebaseUID)
	return nil
}

func (UnavailableStore) Close() error { return nil }
