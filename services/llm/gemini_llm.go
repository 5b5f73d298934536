// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	// Rate-limit retry policy: up to three attempts, waiting 1s then 2s
	// between them. Only HTTP 429 is retried.
	geminiMaxAttempts = 3
	geminiBackoffBase = 1000 * time.Millisecond
)

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content           geminiContent      `json:"content"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// --- Client Implementation ---

// GeminiClient talks to the Gemini generateContent REST API with Google
// Search grounding enabled.
type GeminiClient struct {
	httpClient   *http.Client
	apiKey       string
	model        string
	systemPrompt string

	// baseURL and sleep are injectable for tests.
	baseURL string
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewGeminiClient() (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	model := os.Getenv("GEMINI_MODEL")

	if apiKey == "" {
		secretPath := "/run/secrets/gemini_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Gemini API Key from secrets")
		}
	}

	if apiKey == "" {
		slog.Warn("Gemini API Key is missing.")
		return nil, fmt.Errorf("GEMINI_API_KEY is missing")
	}

	if model == "" {
		model = "gemini-2.5-flash"
		slog.Info("GEMINI_MODEL not set, defaulting to", "model", model)
	}

	systemPrompt := os.Getenv("MEDICARE_SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = "Anda adalah asisten kesehatan Medicare. Jawab pertanyaan " +
			"kesehatan pengguna dalam Bahasa Indonesia dengan jelas dan akurat, " +
			"dan sarankan konsultasi dengan tenaga medis untuk keluhan serius."
	}

	return &GeminiClient{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		baseURL:      geminiBaseURL,
		sleep:        sleepCtx,
	}, nil
}

var _ AnalysisClient = (*GeminiClient)(nil)

// Analyze implements the AnalysisClient interface.
func (g *GeminiClient) Analyze(ctx context.Context, history []datatypes.Message) (AnalysisResult, error) {
	payload := geminiRequest{
		Contents: historyToContents(history),
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: g.systemPrompt}},
		},
		Tools: []geminiTool{{GoogleSearch: &struct{}{}}},
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s",
		g.baseURL, g.model, url.QueryEscape(g.apiKey))

	for attempt := 1; attempt <= geminiMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(reqBodyBytes))
		if err != nil {
			return AnalysisResult{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("content-type", "application/json")

		slog.Debug("Sending REST request to Gemini", "model", g.model, "attempt", attempt)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return AnalysisResult{}, ctx.Err()
			}
			observability.AIAttempts.WithLabelValues("network_error").Inc()
			return AnalysisResult{}, fmt.Errorf("HTTP request failed: %w", err)
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			observability.AIAttempts.WithLabelValues("rate_limited").Inc()
			if attempt < geminiMaxAttempts {
				wait := geminiBackoffBase << (attempt - 1)
				slog.Warn("Gemini rate limited, backing off",
					"attempt", attempt, "wait", wait)
				if err := g.sleep(ctx, wait); err != nil {
					return AnalysisResult{}, err
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			observability.AIAttempts.WithLabelValues("http_error").Inc()
			return AnalysisResult{}, fmt.Errorf("gemini API returned status %d: %s",
				resp.StatusCode, string(bodyBytes))
		}

		var apiResp geminiResponse
		if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
			observability.AIAttempts.WithLabelValues("http_error").Inc()
			return AnalysisResult{}, fmt.Errorf("failed to parse response JSON: %w", err)
		}
		if apiResp.Error != nil {
			observability.AIAttempts.WithLabelValues("http_error").Inc()
			return AnalysisResult{}, fmt.Errorf("gemini API error: %s - %s",
				apiResp.Error.Status, apiResp.Error.Message)
		}

		text, sources := extractAnswer(apiResp)
		if text == "" {
			slog.Warn("Gemini returned no usable text")
			observability.AIAttempts.WithLabelValues("empty").Inc()
			observability.AIDegraded.Inc()
			return degraded(FallbackEmpty), nil
		}

		observability.AIAttempts.WithLabelValues("ok").Inc()
		return AnalysisResult{
			Text:    appendSources(text, sources),
			Sources: sources,
		}, nil
	}

	slog.Warn("Gemini still rate limited after retries", "attempts", geminiMaxAttempts)
	observability.AIDegraded.Inc()
	return degraded(FallbackBusy), nil
}

// historyToContents maps the conversation to Gemini roles. AI turns are
// "model", everything else "user".
func historyToContents(history []datatypes.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Sender == datatypes.SenderAI {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Text}},
		})
	}
	return contents
}

func extractAnswer(resp geminiResponse) (string, []Source) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	candidate := resp.Candidates[0]

	finalText := ""
	for _, part := range candidate.Content.Parts {
		finalText += part.Text
	}

	var sources []Source
	if candidate.GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.URI
			}
			sources = append(sources, Source{
				Title: datatypes.DeriveTitle(title),
				URI:   chunk.Web.URI,
			})
		}
	}
	return strings.TrimSpace(finalText), sources
}

// appendSources renders grounding citations as a markdown list under the
// answer.
func appendSources(text string, sources []Source) string {
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n**Sumber Informasi:**")
	for _, src := range sources {
		fmt.Fprintf(&b, "\n* [%s](%s)", src.Title, src.URI)
	}
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
