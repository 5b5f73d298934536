// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"
	"time"
)

func TestDeriveTitle(t *testing.T) {
	t.Run("short text kept verbatim", func(t *testing.T) {
		in := "Gula darah 120, tekanan 130/90"
		if got := DeriveTitle(in); got != in {
			t.Errorf("DeriveTitle(%q) = %q, want unchanged", in, got)
		}
	})

	t.Run("exactly 30 runes not truncated", func(t *testing.T) {
		in := strings.Repeat("a", 30)
		if got := DeriveTitle(in); got != in {
			t.Errorf("30-rune title must not truncate, got %q", got)
		}
	})

	t.Run("long text truncated with ellipsis", func(t *testing.T) {
		in := strings.Repeat("a", 31)
		want := strings.Repeat("a", 30) + "..."
		if got := DeriveTitle(in); got != want {
			t.Errorf("DeriveTitle = %q, want %q", got, want)
		}
	})

	t.Run("multibyte text counts runes not bytes", func(t *testing.T) {
		in := strings.Repeat("é", 29)
		if got := DeriveTitle(in); got != in {
			t.Errorf("29-rune multibyte title must not truncate, got %q", got)
		}
	})
}

func TestSender_Valid(t *testing.T) {
	if !SenderUser.Valid() || !SenderAI.Valid() {
		t.Error("user and ai are the two valid senders")
	}
	if Sender("system").Valid() {
		t.Error("unknown sender must not validate")
	}
}

func TestMessage_DisplayTimestamp(t *testing.T) {
	stamped := Message{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if got := stamped.DisplayTimestamp(); !got.Equal(stamped.Timestamp) {
		t.Errorf("stamped message must keep its timestamp, got %v", got)
	}

	before := time.Now()
	got := Message{}.DisplayTimestamp()
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Errorf("in-flight message should display as now, got %v", got)
	}
}
