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
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

var tracer = otel.Tracer("medicare.chat")

// RunTurn executes one user/AI exchange against a session: persist the
// user message, analyze the full history, persist the reply. On AI
// failure the apology is persisted instead, so the session always shows
// both sides of the turn. The returned message is the reply text and
// sender as written; the store assigns id and timestamp.
//
// Summary upsert failures are logged and do not fail the turn; the
// message log is the source of truth.
func RunTurn(ctx context.Context, store storage.Store, ai llm.AnalysisClient, userID, sessionID, text string) (datatypes.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return datatypes.Message{}, ErrEmptyMessage
	}

	ctx, span := tracer.Start(ctx, "chat.Turn",
		trace.WithAttributes(
			attribute.String("chat.session_id", sessionID),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	err := store.Append(ctx, userID, sessionID, datatypes.Message{
		Text:   text,
		Sender: datatypes.SenderUser,
	})
	if err := tolerateSummaryFailure(err); err != nil {
		return datatypes.Message{}, fmt.Errorf("persist user message: %w", err)
	}

	history, err := store.Messages(ctx, userID, sessionID)
	if err != nil {
		slog.Error("failed to read history for analysis", "error", err)
		history = []datatypes.Message{{Text: text, Sender: datatypes.SenderUser}}
	}

	reply := datatypes.Message{Text: Apology, Sender: datatypes.SenderAI}
	result, err := ai.Analyze(ctx, history)
	switch {
	case err == nil:
		reply.Text = result.Text
	case ctx.Err() != nil:
		return datatypes.Message{}, ctx.Err()
	default:
		span.RecordError(err)
		slog.Error("AI analysis failed", "sessionId", sessionID, "error", err)
	}

	err = store.Append(ctx, userID, sessionID, reply)
	if err := tolerateSummaryFailure(err); err != nil {
		return datatypes.Message{}, fmt.Errorf("persist AI reply: %w", err)
	}
	return reply, nil
}

func tolerateSummaryFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrSummaryUpsert) {
		slog.Warn("continuing turn despite summary failure", "error", err)
		return nil
	}
	return err
}
