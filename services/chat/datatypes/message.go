// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the wire and storage types shared by the chat
// service: messages, sessions, and user profiles.
package datatypes

import "time"

// Sender identifies which side of the conversation wrote a message.
// Exactly two variants exist.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is one of the two known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Message is one turn in a conversation. Messages are immutable once
// written; they are never edited or deleted.
type Message struct {
	// ID is assigned by the store on insert, unique within a session.
	ID string `json:"id"`

	// Text is the user-visible content. Never stored empty.
	Text string `json:"text"`

	Sender Sender `json:"sender"`

	// Timestamp is store-assigned. It may be zero at read time while a
	// write is still in flight; use DisplayTimestamp for presentation.
	Timestamp time.Time `json:"timestamp"`
}

// DisplayTimestamp returns the message timestamp, substituting the current
// local time when the store-assigned one has not landed yet. The substitute
// is for display ordering only and is never persisted.
func (m Message) DisplayTimestamp() time.Time {
	if m.Timestamp.IsZero() {
		return time.Now()
	}
	return m.Timestamp
}
