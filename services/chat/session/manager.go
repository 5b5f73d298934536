// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session orchestrates one client's chat lifecycle: identity
// resolution, the active session subscription, and the user-turn /
// AI-turn exchange against the message store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/services/chat/datatypes"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

// Apology is persisted as an AI message when a turn fails outright
// (unreachable AI backend or store write failure on the reply).
const Apology = "Maaf, terjadi kesalahan saat memproses permintaan Anda. (Cek koneksi AI/Firestore)."

// State tracks the manager lifecycle. A manager only accepts messages
// once identity resolution and the initial subscription succeed.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotReady     = errors.New("session manager is not ready")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrBusy         = errors.New("previous message is still being processed")
	ErrAuthFailed   = errors.New("identity resolution failed")
)

// Snapshot is what clients render: the active session's full ordered
// history plus the thinking indicator. A snapshot with an empty
// SessionID is the home view.
type Snapshot struct {
	SessionID string              `json:"sessionId"`
	Messages  []datatypes.Message `json:"messages"`
	Thinking  bool                `json:"thinking"`
}

// OnSnapshot receives every state change a client should repaint for.
// Called sequentially, never concurrently with itself.
type OnSnapshot func(Snapshot)

// Manager is the per-client chat orchestrator. One Manager serves one
// connection (or one request scope); it is safe for concurrent use.
type Manager struct {
	store    storage.Store
	ai       llm.AnalysisClient
	resolver *identity.Resolver

	mu        sync.Mutex
	state     State
	user      identity.Identity
	sessionID string
	messages  []datatypes.Message
	thinking  bool
	unsub     storage.Unsubscribe
	notify    OnSnapshot
}

// NewManager wires a manager. The snapshot callback may be nil for
// request-scoped use where callers poll History instead.
func NewManager(store storage.Store, ai llm.AnalysisClient, resolver *identity.Resolver, notify OnSnapshot) *Manager {
	return &Manager{
		store:    store,
		ai:       ai,
		resolver: resolver,
		notify:   notify,
	}
}

// Init resolves the client identity and opens a fresh session. It is
// the Uninitialized -> Resolving -> Ready transition; a failed identity
// or a subscription failure lands in Failed instead, a terminal state
// that never subscribes and refuses every send.
func (m *Manager) Init(ctx context.Context, credential string) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return fmt.Errorf("init called in state %s", m.state)
	}
	m.state = StateResolving
	m.mu.Unlock()

	user := m.resolver.Resolve(ctx, credential)
	if user.Failed() {
		m.mu.Lock()
		m.user = user
		m.state = StateFailed
		m.mu.Unlock()
		return fmt.Errorf("init: %w (correlationId %s)", ErrAuthFailed, user.CorrelationID)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	if err := m.openSession(uuid.NewString()); err != nil {
		m.mu.Lock()
		m.state = StateFailed
		m.mu.Unlock()
		return fmt.Errorf("init: %w", err)
	}

	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()

	slog.Info("chat session manager ready",
		"userId", user.UserID, "authMethod", string(user.Method))
	return nil
}

// SendMessage runs one full turn: persist the user message, ask the AI
// backend for a reply with the whole history as context, persist the
// reply. Exactly one turn runs at a time per manager; concurrent calls
// get ErrBusy instead of queueing.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return ErrNotReady
	}
	if m.thinking {
		m.mu.Unlock()
		return ErrBusy
	}
	m.thinking = true
	userID := m.user.UserID
	sessionID := m.sessionID
	m.mu.Unlock()

	if sessionID == "" {
		// Sending from the home view starts a new session.
		if err := m.StartNewChat(); err != nil {
			m.clearThinking()
			return err
		}
		m.mu.Lock()
		sessionID = m.sessionID
		m.mu.Unlock()
	}

	m.pushSnapshot()
	defer m.clearThinking()

	_, err := RunTurn(ctx, m.store, m.ai, userID, sessionID, text)
	return err
}

// StartNewChat opens a fresh empty session. The history clears
// immediately, before the first message is written.
func (m *Manager) StartNewChat() error {
	return m.openSession(uuid.NewString())
}

// SwitchSession moves the subscription to an existing session. The old
// subscription is always released first, even if the new one fails.
func (m *Manager) SwitchSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("switch session: empty session id")
	}
	return m.openSession(sessionID)
}

// GoHome releases the active subscription and shows the empty home
// view. Sessions remain listed and switchable.
func (m *Manager) GoHome() {
	m.mu.Lock()
	old := m.unsub
	m.unsub = nil
	m.sessionID = ""
	m.messages = nil
	m.mu.Unlock()

	if old != nil {
		old()
	}
	m.pushSnapshot()
}

// openSession swaps the active subscription to sessionID. Unsubscribe
// happens before subscribe so the old session can never deliver a
// snapshot after the switch.
func (m *Manager) openSession(sessionID string) error {
	m.mu.Lock()
	old := m.unsub
	m.unsub = nil
	m.sessionID = sessionID
	m.messages = nil
	userID := m.user.UserID
	m.mu.Unlock()

	if old != nil {
		old()
	}

	unsub, err := m.store.Subscribe(userID, sessionID, func(messages []datatypes.Message) {
		m.onStoreUpdate(sessionID, messages)
	})
	if err != nil {
		return fmt.Errorf("subscribe to session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	if m.sessionID != sessionID {
		// Lost a race with a newer switch; drop this subscription.
		m.mu.Unlock()
		unsub()
		return nil
	}
	m.unsub = unsub
	m.mu.Unlock()
	return nil
}

// onStoreUpdate ingests a store snapshot. Snapshots for sessions other
// than the active one are stale and dropped.
func (m *Manager) onStoreUpdate(sessionID string, messages []datatypes.Message) {
	m.mu.Lock()
	if m.sessionID != sessionID {
		m.mu.Unlock()
		return
	}
	m.messages = messages
	m.mu.Unlock()
	m.pushSnapshot()
}

// History returns the active session's current ordered messages.
func (m *Manager) History() []datatypes.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]datatypes.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Sessions lists the user's most recent sessions, newest activity
// first.
func (m *Manager) Sessions(ctx context.Context) ([]datatypes.Session, error) {
	m.mu.Lock()
	userID := m.user.UserID
	m.mu.Unlock()
	return m.store.ListSessions(ctx, userID, storage.DefaultSessionLimit)
}

// SessionID returns the active session id, empty on the home view.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Thinking reports whether a turn is in flight.
func (m *Manager) Thinking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thinking
}

// User returns the resolved identity.
func (m *Manager) User() identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close releases the subscription. The manager is not reusable after.
func (m *Manager) Close() {
	m.mu.Lock()
	old := m.unsub
	m.unsub = nil
	m.mu.Unlock()
	if old != nil {
		old()
	}
}

func (m *Manager) clearThinking() {
	m.mu.Lock()
	m.thinking = false
	m.mu.Unlock()
	m.pushSnapshot()
}

func (m *Manager) pushSnapshot() {
	m.mu.Lock()
	notify := m.notify
	snap := Snapshot{
		SessionID: m.sessionID,
		Messages:  make([]datatypes.Message, len(m.messages)),
		Thinking:  m.thinking,
	}
	copy(snap.Messages, m.messages)
	m.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}
