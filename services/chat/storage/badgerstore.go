// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

// BadgerStore is the embedded persistent Store backend.
//
// Key scheme (namespace scopes multiple deployments in one database):
//
//	{ns}/users/{uid}/sessions/{sid}/messages/{seq}  -> message JSON
//	{ns}/users/{uid}/session-index/{sid}            -> session summary JSON
//	{ns}/users/{uid}/profile                        -> user profile JSON
//
// The zero-padded sequence keeps message keys in insertion order, which is
// also timestamp order since timestamps are assigned under the store lock.
type BadgerStore struct {
	db        *badgerdb.DB
	namespace string

	mu  sync.Mutex
	hub *hub
	now func() time.Time

	// seqs caches the next message sequence per user/session, loaded
	// lazily from the key space.
	seqs map[string]uint64
}

// NewBadgerStore wraps an opened BadgerDB. namespace defaults to
// "default-app-id" when empty.
func NewBadgerStore(db *badgerdb.DB, namespace string) *BadgerStore {
	if namespace == "" {
		namespace = "default-app-id"
	}
	return &BadgerStore{
		db:        db,
		namespace: namespace,
		hub:       newHub(),
		now:       time.Now,
		seqs:      make(map[string]uint64),
	}
}

var _ Store = (*BadgerStore)(nil)

func (s *BadgerStore) messagePrefix(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s/users/%s/sessions/%s/messages/", s.namespace, userID, sessionID))
}

func (s *BadgerStore) messageKey(userID, sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/users/%s/sessions/%s/messages/%020d", s.namespace, userID, sessionID, seq))
}

func (s *BadgerStore) summaryPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("%s/users/%s/session-index/", s.namespace, userID))
}

func (s *BadgerStore) summaryKey(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s/users/%s/session-index/%s", s.namespace, userID, sessionID))
}

func (s *BadgerStore) profileKey(firebaseUID string) []byte {
	return []byte(fmt.Sprintf("%s/users/%s/profile", s.namespace, firebaseUID))
}

func (s *BadgerStore) Append(_ context.Context, userID, sessionID string, msg datatypes.Message) error {
	if !msg.Sender.Valid() {
		return fmt.Errorf("append: unknown sender %q", msg.Sender)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(userID, sessionID)
	if err != nil {
		return fmt.Errorf("append: load sequence: %w", err)
	}

	now := s.now()
	msg.ID = fmt.Sprintf("msg-%06d", seq+1)
	msg.Timestamp = now

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("append: encode message: %w", err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(s.messageKey(userID, sessionID, seq), value)
	})
	if err != nil {
		return fmt.Errorf("append: write message: %w", err)
	}
	s.seqs[userID+"/"+sessionID] = seq + 1
	observability.MessagesAppended.WithLabelValues(string(msg.Sender)).Inc()

	// The summary upsert is a separate write on purpose: its failure
	// must never roll back the message append.
	summaryErr := s.upsertSummary(userID, sessionID, msg, now)

	log, readErr := s.readMessages(userID, sessionID)
	if readErr == nil {
		s.hub.publish(userID, sessionID, log)
	}

	if summaryErr != nil {
		slog.Warn("session summary upsert failed",
			"userId", userID, "sessionId", sessionID, "error", summaryErr)
		observability.SummaryUpsertFailures.Inc()
		return fmt.Errorf("%w: %w", ErrSummaryUpsert, summaryErr)
	}
	return nil
}

// nextSeq returns the next message sequence, scanning the key space on
// first use of a session. Caller holds s.mu.
func (s *BadgerStore) nextSeq(userID, sessionID string) (uint64, error) {
	cacheKey := userID + "/" + sessionID
	if seq, ok := s.seqs[cacheKey]; ok {
		return seq, nil
	}

	var count uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.messagePrefix(userID, sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.seqs[cacheKey] = count
	return count, nil
}

func (s *BadgerStore) upsertSummary(userID, sessionID string, msg datatypes.Message, now time.Time) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		summary := datatypes.Session{ID: sessionID}
		item, err := txn.Get(s.summaryKey(userID, sessionID))
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			}); err != nil {
				return fmt.Errorf("decode summary: %w", err)
			}
		case badgerdb.ErrKeyNotFound:
			summary.CreatedAt = now
		default:
			return fmt.Errorf("read summary: %w", err)
		}

		summary.Title = applyTitle(summary.Title, msg)
		summary.LastActivity = now

		value, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		return txn.Set(s.summaryKey(userID, sessionID), value)
	})
}

func (s *BadgerStore) Messages(_ context.Context, userID, sessionID string) ([]datatypes.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMessages(userID, sessionID)
}

// readMessages scans the session's message keys in order. Caller holds
// s.mu.
func (s *BadgerStore) readMessages(userID, sessionID string) ([]datatypes.Message, error) {
	var out []datatypes.Message
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = s.messagePrefix(userID, sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var msg datatypes.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decode message %s: %w", it.Item().Key(), err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedCopy(out), nil
}

func (s *BadgerStore) ListSessions(_ context.Context, userID string, limit int) ([]datatypes.Session, error) {
	var out []datatypes.Session
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = s.summaryPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var summary datatypes.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			}); err != nil {
				return fmt.Errorf("decode summary %s: %w", it.Item().Key(), err)
			}
			if summary.Title == "" {
				summary.Title = datatypes.UntitledSession
			}
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *BadgerStore) Subscribe(userID, sessionID string, onUpdate OnUpdate) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unsub := s.hub.subscribe(userID, sessionID, onUpdate)
	log, err := s.readMessages(userID, sessionID)
	if err != nil {
		unsub()
		return nil, fmt.Errorf("subscribe: initial snapshot: %w", err)
	}
	onUpdate(log)
	return unsub, nil
}

func (s *BadgerStore) SaveUser(_ context.Context, profile datatypes.UserProfile) error {
	uid := strings.TrimSpace(profile.FirebaseUID)
	if uid == "" {
		return fmt.Errorf("save user: firebaseUid is required")
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		existing := datatypes.UserProfile{}
		item, err := txn.Get(s.profileKey(uid))
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err == nil && !existing.CreatedAt.IsZero() {
				profile.CreatedAt = existing.CreatedAt
			}
		case badgerdb.ErrKeyNotFound:
			if profile.CreatedAt.IsZero() {
				profile.CreatedAt = s.now()
			}
		default:
			return fmt.Errorf("read profile: %w", err)
		}

		value, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		return txn.Set(s.profileKey(uid), value)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
