// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/services/chat/session"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	"github.com/medicare-health/medicare-server/services/llm"
)

// WSRequest routes client actions over the chat socket.
type WSRequest struct {
	Action    string `json:"action"` // "send", "new_chat", "switch_session", "go_home", "list_sessions"
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsWriteTimeout bounds a single frame write. A stalled peer fails its
// own connection instead of blocking the server.
const wsWriteTimeout = 10 * time.Second

// snapshotBuffer caps queued snapshots per connection. Each frame is a
// full repaint, so dropping older queued frames loses nothing.
const snapshotBuffer = 8

// wsWriter serializes writes: the read loop and the snapshot callback
// both write to the same connection.
type wsWriter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *wsWriter) sendJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := w.ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// snapshotPump decouples snapshot delivery from the storage layer.
// Store subscriptions invoke callbacks synchronously under the store
// lock, so the callback must never block on the network: enqueue tries
// a buffered send, dropping the oldest queued snapshot on overflow, and
// a per-connection goroutine does the actual writes in queue order.
type snapshotPump struct {
	ch   chan session.Snapshot
	quit chan struct{}
}

func newSnapshotPump(send func(session.Snapshot)) *snapshotPump {
	p := &snapshotPump{
		ch:   make(chan session.Snapshot, snapshotBuffer),
		quit: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case snap := <-p.ch:
				send(snap)
			case <-p.quit:
				return
			}
		}
	}()
	return p
}

func (p *snapshotPump) enqueue(snap session.Snapshot) {
	for {
		select {
		case p.ch <- snap:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

func (p *snapshotPump) stop() {
	close(p.quit)
}

// HandleChatWebSocket runs one client's chat lifecycle over a
// WebSocket. Every state change is pushed as a full snapshot, so a
// client repaints from any single frame.
func HandleChatWebSocket(store storage.Store, ai llm.AnalysisClient, resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Websocket client connected")

		writer := &wsWriter{ws: ws}
		pump := newSnapshotPump(func(snap session.Snapshot) {
			_ = writer.sendJSON(map[string]interface{}{
				"action":    "snapshot",
				"sessionId": snap.SessionID,
				"messages":  snap.Messages,
				"thinking":  snap.Thinking,
			})
		})
		defer pump.stop()
		mgr := session.NewManager(store, ai, resolver, pump.enqueue)
		defer mgr.Close()

		credential := c.Query("token")
		if credential == "" {
			credential = extractCredentialFromHeader(c)
		}

		ctx := c.Request.Context()
		if err := mgr.Init(ctx, credential); err != nil {
			slog.Error("websocket session init failed", "error", err)
			_ = writer.sendJSON(map[string]interface{}{
				"action": "error",
				"error":  "failed to initialize session",
			})
			return
		}

		if err := writer.sendJSON(map[string]interface{}{
			"action":    "session_created",
			"sessionId": mgr.SessionID(),
			"userId":    mgr.User().UserID,
		}); err != nil {
			return
		}

		for {
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				break
			}

			switch req.Action {
			case "send":
				if err := mgr.SendMessage(ctx, req.Message); err != nil {
					sendWSError(writer, err)
				}

			case "new_chat":
				if err := mgr.StartNewChat(); err != nil {
					sendWSError(writer, err)
					continue
				}
				_ = writer.sendJSON(map[string]interface{}{
					"action":    "session_created",
					"sessionId": mgr.SessionID(),
				})

			case "switch_session":
				if err := mgr.SwitchSession(req.SessionID); err != nil {
					sendWSError(writer, err)
				}

			case "go_home":
				mgr.GoHome()

			case "list_sessions":
				sessions, err := mgr.Sessions(ctx)
				if err != nil {
					sendWSError(writer, err)
					continue
				}
				_ = writer.sendJSON(map[string]interface{}{
					"action":   "sessions",
					"sessions": sessions,
				})

			default:
				_ = writer.sendJSON(map[string]interface{}{
					"action": "error",
					"error":  "unknown action: " + req.Action,
				})
			}
		}
	}
}

// sendWSError maps turn guards to client-friendly messages. Guard
// violations are expected flow, not server failures.
func sendWSError(writer *wsWriter, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		msg = "message is empty"
	case errors.Is(err, session.ErrBusy):
		msg = "still processing the previous message"
	case errors.Is(err, session.ErrNotReady):
		msg = "session is not ready"
	}
	_ = writer.sendJSON(map[string]interface{}{
		"action": "error",
		"error":  msg,
	})
}

func extractCredentialFromHeader(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) {
		return header[len(prefix):]
	}
	return ""
}
