// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

// MemoryStore is the in-process Store backend. It backs tests and the
// lightweight deployment mode (no persistence across restarts).
type MemoryStore struct {
	mu  sync.Mutex
	hub *hub

	// now is injectable for tests.
	now func() time.Time

	// messages: userID -> sessionID -> ordered log.
	messages map[string]map[string][]datatypes.Message
	// sessions: userID -> sessionID -> summary.
	sessions map[string]map[string]datatypes.Session
	users    map[string]datatypes.UserProfile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hub:      newHub(),
		now:      time.Now,
		messages: make(map[string]map[string][]datatypes.Message),
		sessions: make(map[string]map[string]datatypes.Session),
		users:    make(map[string]datatypes.UserProfile),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(_ context.Context, userID, sessionID string, msg datatypes.Message) error {
	if !msg.Sender.Valid() {
		return fmt.Errorf("append: unknown sender %q", msg.Sender)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.messages[userID] == nil {
		s.messages[userID] = make(map[string][]datatypes.Message)
	}
	log := s.messages[userID][sessionID]

	now := s.now()
	msg.ID = fmt.Sprintf("msg-%06d", len(log)+1)
	msg.Timestamp = now
	log = append(log, msg)
	s.messages[userID][sessionID] = log

	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string]datatypes.Session)
	}
	summary, exists := s.sessions[userID][sessionID]
	summary.ID = sessionID
	summary.Title = applyTitle(summary.Title, msg)
	summary.LastActivity = now
	if !exists {
		summary.CreatedAt = now
	}
	s.sessions[userID][sessionID] = summary

	observability.MessagesAppended.WithLabelValues(string(msg.Sender)).Inc()

	// Deliver while holding the lock so subscribers always observe
	// snapshots in append order. Callbacks must not call back into the
	// store.
	s.hub.publish(userID, sessionID, sortedCopy(log))
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, userID, sessionID string) ([]datatypes.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCopy(s.messages[userID][sessionID]), nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string, limit int) ([]datatypes.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]datatypes.Session, 0, len(s.sessions[userID]))
	for _, summary := range s.sessions[userID] {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(userID, sessionID string, onUpdate OnUpdate) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unsub := s.hub.subscribe(userID, sessionID, onUpdate)
	onUpdate(sortedCopy(s.messages[userID][sessionID]))
	return unsub, nil
}

func (s *MemoryStore) SaveUser(_ context.Context, profile datatypes.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[profile.FirebaseUID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.now()
	}
	s.users[profile.FirebaseUID] = profile
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// sortedCopy returns a copy ordered by timestamp ascending with the
// store-assigned id as tiebreak.
func sortedCopy(log []datatypes.Message) []datatypes.Message {
	out := make([]datatypes.Message, len(log))
	copy(out, log)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
