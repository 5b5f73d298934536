// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
)

// Fallback replies shown to the user when the AI backend cannot produce
// a real answer. These are displayable Indonesian copy, not errors.
const (
	FallbackBusy  = "Maaf, layanan AI sedang sibuk. Silakan coba lagi sebentar lagi."
	FallbackEmpty = "Maaf, AI tidak dapat menghasilkan balasan yang relevan."
)

// Source is one grounding citation attached to an answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// AnalysisResult is the outcome of one analysis turn. Degraded marks a
// fallback reply; callers use it to decide whether the turn counts as a
// real answer (it still gets persisted and displayed either way).
type AnalysisResult struct {
	Text     string   `json:"text"`
	Degraded bool     `json:"degraded"`
	Sources  []Source `json:"sources,omitempty"`
}

// AnalysisClient is the interface every AI backend implements. Analyze
// takes the full ordered conversation history, newest message last, and
// always returns displayable text unless the request itself could not be
// made (cancelled context, unreachable backend with no fallback policy).
type AnalysisClient interface {
	Analyze(ctx context.Context, history []datatypes.Message) (AnalysisResult, error)
}

// degraded wraps fallback copy in a result.
func degraded(text string) AnalysisResult {
	return AnalysisResult{Text: text, Degraded: true}
}
