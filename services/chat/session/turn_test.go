// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

// summaryFailStore persists messages but reports every summary upsert
// as failed.
type summaryFailStore struct {
	*storage.MemoryStore
}

func (s *summaryFailStore) Append(ctx context.Context, userID, sessionID string, msg datatypes.Message) error {
	if err := s.MemoryStore.Append(ctx, userID, sessionID, msg); err != nil {
		return err
	}
	return fmt.Errorf("%w: index write refused", storage.ErrSummaryUpsert)
}

// brokenStore fails every append outright.
type brokenStore struct {
	storage.UnavailableStore
}

func (brokenStore) Append(context.Context, string, string, datatypes.Message) error {
	return errors.New("disk full")
}

func TestRunTurn_EmptyTextRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := RunTurn(context.Background(), store, &stubAI{}, "u1", "s1", "  \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	messages, readErr := store.Messages(context.Background(), "u1", "s1")
	require.NoError(t, readErr)
	assert.Empty(t, messages, "nothing is persisted for a rejected turn")
}

func TestRunTurn_SummaryFailureDoesNotFailTheTurn(t *testing.T) {
	store := &summaryFailStore{MemoryStore: storage.NewMemoryStore()}

	reply, err := RunTurn(context.Background(), store, &stubAI{}, "u1", "s1", "halo")
	require.NoError(t, err)
	assert.Equal(t, "balasan AI", reply.Text)

	messages, err := store.Messages(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, messages, 2, "both turn halves persisted despite summary failures")
}

func TestRunTurn_AppendFailureSurfaces(t *testing.T) {
	_, err := RunTurn(context.Background(), brokenStore{}, &stubAI{}, "u1", "s1", "halo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist user message")
}

func TestRunTurn_ApologyOnAIFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	ai := &stubAI{fn: func(context.Context, []datatypes.Message) (llm.AnalysisResult, error) {
		return llm.AnalysisResult{}, errors.New("backend down")
	}}

	reply, err := RunTurn(context.Background(), store, ai, "u1", "s1", "tanya")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SenderAI, reply.Sender)
	assert.Equal(t, Apology, reply.Text)
}
