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
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

// FirestoreStore is the Cloud Firestore Store backend.
//
// Document layout (namespace scopes deployments sharing one project):
//
//	artifacts/{ns}/users/{uid}                          user profile fields
//	artifacts/{ns}/users/{uid}/sessions/{sid}           session summary
//	artifacts/{ns}/users/{uid}/sessions/{sid}/messages  message documents
//
// Timestamps are server-assigned via the serverTimestamp sentinel, and
// Subscribe uses Firestore's native snapshot listeners, so updates written
// by other devices or tabs of the same user are pushed without polling.
type FirestoreStore struct {
	client    *firestore.Client
	namespace string
}

// NewFirestoreStore creates a Firestore store for the given project.
func NewFirestoreStore(ctx context.Context, projectID, namespace string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	if namespace == "" {
		namespace = "default-app-id"
	}
	return &FirestoreStore{client: client, namespace: namespace}, nil
}

var _ Store = (*FirestoreStore)(nil)

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *FirestoreStore) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection("artifacts").Doc(s.namespace).
		Collection("users").Doc(userID)
}

func (s *FirestoreStore) sessionDoc(userID, sessionID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection("sessions").Doc(sessionID)
}

func (s *FirestoreStore) messagesCol(userID, sessionID string) *firestore.CollectionRef {
	return s.sessionDoc(userID, sessionID).Collection("messages")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type messageDoc struct {
	Text   string `firestore:"text"`
	Sender string `firestore:"sender"`
	// serverTimestamp: the zero value is replaced by the server clock on
	// write, and reads back as zero while the write is still in flight.
	Timestamp time.Time `firestore:"timestamp,serverTimestamp"`
}

type sessionSummaryDoc struct {
	Title        string    `firestore:"title"`
	LastActivity time.Time `firestore:"lastActivity"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// ─────────────────────────────────────────
// Store implementation
// ─────────────────────────────────────────

func (s *FirestoreStore) Append(ctx context.Context, userID, sessionID string, msg datatypes.Message) error {
	if !msg.Sender.Valid() {
		return fmt.Errorf("append: unknown sender %q", msg.Sender)
	}

	_, _, err := s.messagesCol(userID, sessionID).Add(ctx, messageDoc{
		Text:   msg.Text,
		Sender: string(msg.Sender),
	})
	if err != nil {
		return fmt.Errorf("append: write message: %w", err)
	}
	observability.MessagesAppended.WithLabelValues(string(msg.Sender)).Inc()

	if err := s.upsertSummary(ctx, userID, sessionID, msg); err != nil {
		slog.Warn("session summary upsert failed",
			"userId", userID, "sessionId", sessionID, "error", err)
		observability.SummaryUpsertFailures.Inc()
		return fmt.Errorf("%w: %w", ErrSummaryUpsert, err)
	}
	return nil
}

func (s *FirestoreStore) upsertSummary(ctx context.Context, userID, sessionID string, msg datatypes.Message) error {
	ref := s.sessionDoc(userID, sessionID)

	existingTitle := ""
	created := false
	snap, err := ref.Get(ctx)
	switch {
	case err == nil:
		var doc sessionSummaryDoc
		if derr := snap.DataTo(&doc); derr == nil {
			existingTitle = doc.Title
		}
	case status.Code(err) == codes.NotFound:
		created = true
	default:
		return fmt.Errorf("read summary: %w", err)
	}

	fields := map[string]interface{}{
		"title":        applyTitle(existingTitle, msg),
		"lastActivity": firestore.ServerTimestamp,
	}
	if created {
		fields["createdAt"] = firestore.ServerTimestamp
	}

	if _, err := ref.Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("merge summary: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Messages(ctx context.Context, userID, sessionID string) ([]datatypes.Message, error) {
	iter := s.messagesCol(userID, sessionID).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []datatypes.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore Messages: %w", err)
		}
		out = append(out, decodeMessage(snap))
	}
	return out, nil
}

func (s *FirestoreStore) ListSessions(ctx context.Context, userID string, limit int) ([]datatypes.Session, error) {
	iter := s.userDoc(userID).Collection("sessions").
		OrderBy("lastActivity", firestore.Desc).
		Limit(normalizeLimit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var out []datatypes.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessions: %w", err)
		}

		var doc sessionSummaryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", snap.Ref.ID, err)
		}
		title := doc.Title
		if title == "" {
			title = datatypes.UntitledSession
		}
		out = append(out, datatypes.Session{
			ID:           snap.Ref.ID,
			Title:        title,
			LastActivity: doc.LastActivity,
			CreatedAt:    doc.CreatedAt,
		})
	}
	return out, nil
}

func (s *FirestoreStore) Subscribe(userID, sessionID string, onUpdate OnUpdate) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(context.Background())
	snapshots := s.messagesCol(userID, sessionID).
		OrderBy("timestamp", firestore.Asc).
		Snapshots(ctx)

	go func() {
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					slog.Error("session snapshot listener stopped",
						"userId", userID, "sessionId", sessionID, "error", err)
				}
				return
			}

			var messages []datatypes.Message
			docs := snap.Documents
			for {
				doc, err := docs.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					slog.Error("session snapshot decode failed",
						"sessionId", sessionID, "error", err)
					break
				}
				messages = append(messages, decodeMessage(doc))
			}
			onUpdate(messages)
		}
	}()

	observability.ActiveSubscriptions.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			observability.ActiveSubscriptions.Dec()
		})
	}, nil
}

func (s *FirestoreStore) SaveUser(ctx context.Context, profile datatypes.UserProfile) error {
	uid := strings.TrimSpace(profile.FirebaseUID)
	if uid == "" {
		return fmt.Errorf("save user: firebaseUid is required")
	}

	fields := map[string]interface{}{
		"email": profile.Email,
		"name":  profile.Name,
	}
	snap, err := s.userDoc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound || (err == nil && !snap.Exists()) {
		fields["createdAt"] = firestore.ServerTimestamp
	} else if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}

	if _, err := s.userDoc(uid).Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func decodeMessage(snap *firestore.DocumentSnapshot) datatypes.Message {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		slog.Warn("malformed message document", "id", snap.Ref.ID, "error", err)
	}
	text := doc.Text
	if text == "" {
		text = "Pesan kosong"
	}
	return datatypes.Message{
		ID:        snap.Ref.ID,
		Text:      text,
		Sender:    datatypes.Sender(doc.Sender),
		Timestamp: doc.Timestamp,
	}
}
