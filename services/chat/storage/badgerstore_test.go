// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	badgerpkg "github.com/medicare-health/medicare-server/services/chat/storage/badger"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badgerpkg.OpenInMemory()
	require.NoError(t, err)
	store := NewBadgerStore(db, "test-app")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore_AppendAndRead(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("hello")))
	require.NoError(t, store.Append(ctx, "u1", "s1", aiMsg("hi there")))

	messages, err := store.Messages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "msg-000001", messages[0].ID)
	assert.Equal(t, "msg-000002", messages[1].ID)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, datatypes.SenderAI, messages[1].Sender)
	assert.False(t, messages[0].Timestamp.IsZero())
}

func TestBadgerStore_SequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := badgerpkg.OpenWithPath(dir)
	require.NoError(t, err)
	store := NewBadgerStore(db, "test-app")
	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("first")))
	require.NoError(t, store.Close())

	db, err = badgerpkg.OpenWithPath(dir)
	require.NoError(t, err)
	store = NewBadgerStore(db, "test-app")
	defer store.Close()
	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("second")))

	messages, err := store.Messages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)
	assert.Equal(t, "msg-000002", messages[1].ID)
}

func TestBadgerStore_TitleRules(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", aiMsg("Halo!")))
	sessions, err := store.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, datatypes.PlaceholderTitle, sessions[0].Title)

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("obat darah tinggi")))
	require.NoError(t, store.Append(ctx, "u1", "s1", aiMsg("Berikut informasinya.")))

	sessions, err = store.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "obat darah tinggi", sessions[0].Title)
}

func TestBadgerStore_ListSessionsOrderAndLimit(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for i := 0; i < 12; i++ {
		sid := string(rune('a' + i))
		require.NoError(t, store.Append(ctx, "u1", sid, userMsg("topic "+sid)))
	}

	sessions, err := store.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, DefaultSessionLimit)
	assert.Equal(t, "l", sessions[0].ID)
	for i := 1; i < len(sessions); i++ {
		assert.True(t, sessions[i-1].LastActivity.After(sessions[i].LastActivity))
	}

	two, err := store.ListSessions(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestBadgerStore_NamespaceIsolation(t *testing.T) {
	db, err := badgerpkg.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	appA := NewBadgerStore(db, "app-a")
	appB := NewBadgerStore(db, "app-b")

	require.NoError(t, appA.Append(ctx, "u1", "s1", userMsg("hanya app-a")))

	messages, err := appB.Messages(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	sessions, err := appB.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestBadgerStore_SubscribeSnapshots(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("existing")))

	var snapshots [][]datatypes.Message
	unsub, err := store.Subscribe("u1", "s1", func(msgs []datatypes.Message) {
		snapshots = append(snapshots, msgs)
	})
	require.NoError(t, err)

	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], 1)

	require.NoError(t, store.Append(ctx, "u1", "s1", aiMsg("reply")))
	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[1], 2)
	assert.Equal(t, "reply", snapshots[1][1].Text)

	unsub()
	unsub()
	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("unseen")))
	assert.Len(t, snapshots, 2)
}

func TestBadgerStore_SaveUserPreservesCreatedAt(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.SaveUser(ctx, datatypes.UserProfile{
		FirebaseUID: "uid-1", Email: "a@example.com", Name: "Ani",
	}))

	store.now = func() time.Time { return fixed.Add(time.Hour) }
	require.NoError(t, store.SaveUser(ctx, datatypes.UserProfile{
		FirebaseUID: "uid-1", Email: "a@example.com", Name: "Ani Baru",
	}))

	require.Error(t, store.SaveUser(ctx, datatypes.UserProfile{FirebaseUID: "  "}))
}
