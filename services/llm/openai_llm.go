// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

// OpenAIClient is the alternate analysis backend. No search grounding,
// so results never carry sources.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	systemPrompt := os.Getenv("MEDICARE_SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = "Anda adalah asisten kesehatan Medicare. Jawab pertanyaan " +
			"kesehatan pengguna dalam Bahasa Indonesia dengan jelas dan akurat, " +
			"dan sarankan konsultasi dengan tenaga medis untuk keluhan serius."
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client:       openai.NewClient(apiKey),
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

var _ AnalysisClient = (*OpenAIClient)(nil)

// Analyze implements the AnalysisClient interface.
func (o *OpenAIClient) Analyze(ctx context.Context, history []datatypes.Message) (AnalysisResult, error) {
	slog.Debug("Generating reply via OpenAI", "model", o.model)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Sender == datatypes.SenderAI {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		observability.AIAttempts.WithLabelValues("http_error").Inc()
		return AnalysisResult{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		slog.Warn("OpenAI returned no choices or empty content")
		observability.AIAttempts.WithLabelValues("empty").Inc()
		observability.AIDegraded.Inc()
		return degraded(FallbackEmpty), nil
	}

	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	observability.AIAttempts.WithLabelValues("ok").Inc()
	return AnalysisResult{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}
