// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

const (
	// TitleMaxRunes bounds a derived session title before truncation.
	TitleMaxRunes = 30

	// PlaceholderTitle is used when the most recent write was an AI
	// message and no user-derived title exists yet.
	PlaceholderTitle = "New Session"

	// UntitledSession is the directory fallback for a summary document
	// that somehow has no title at all.
	UntitledSession = "Untitled Chat"
)

// Session summarizes one conversation thread. The summary is the
// directory-level record used to list a user's sessions without loading the
// full message log.
type Session struct {
	// ID is generated client side (random uuid) at creation time and is
	// never reused across users.
	ID string `json:"id"`

	// Title is derived from the first user message (see DeriveTitle), or
	// PlaceholderTitle when only AI writes have landed.
	Title string `json:"title"`

	// LastActivity is store-assigned and updated on every message write.
	LastActivity time.Time `json:"lastActivity"`

	// CreatedAt is store-assigned, set once.
	CreatedAt time.Time `json:"createdAt"`
}

// DeriveTitle derives a session title from a user message: the first
// TitleMaxRunes runes, ellipsis-suffixed when truncated.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxRunes {
		return text
	}
	return string(runes[:TitleMaxRunes]) + "..."
}
