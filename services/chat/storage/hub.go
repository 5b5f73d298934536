// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"sync"

	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/observability"
)

// hub is the subscriber registry shared by the embedded backends (memory,
// badger). Firestore uses its native snapshot listeners instead.
//
// Callbacks are invoked synchronously in registration order with the full
// ordered snapshot, so a single subscriber never observes snapshots out of
// order.
type hub struct {
	mu   sync.Mutex
	subs map[subKey]map[int]OnUpdate
	next int
}

type subKey struct {
	userID    string
	sessionID string
}

func newHub() *hub {
	return &hub{subs: make(map[subKey]map[int]OnUpdate)}
}

// subscribe registers fn for the session. The returned Unsubscribe is
// idempotent.
func (h *hub) subscribe(userID, sessionID string, fn OnUpdate) Unsubscribe {
	key := subKey{userID: userID, sessionID: sessionID}

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]OnUpdate)
	}
	h.subs[key][id] = fn
	h.mu.Unlock()

	observability.ActiveSubscriptions.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
			observability.ActiveSubscriptions.Dec()
		})
	}
}

// publish delivers the snapshot to every subscriber of the session. Each
// subscriber gets its own copy so callbacks cannot alias each other's
// backing array.
func (h *hub) publish(userID, sessionID string, messages []datatypes.Message) {
	key := subKey{userID: userID, sessionID: sessionID}

	h.mu.Lock()
	fns := make([]OnUpdate, 0, len(h.subs[key]))
	for _, fn := range h.subs[key] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		snapshot := make([]datatypes.Message, len(messages))
		copy(snapshot, messages)
		fn(snapshot)
	}
}
