// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/services/chat/session"
	"github.com/medicare-health/medicare-server/services/chat/storage"
)

type wsFrame map[string]interface{}

// readUntil reads frames until one matches the wanted action. Bounded
// so a missing frame fails the test instead of hanging it.
func readUntil(t *testing.T, conn *websocket.Conn, action string) wsFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for i := 0; i < 32; i++ {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["action"] == action {
			return frame
		}
	}
	t.Fatalf("no %q frame received", action)
	return nil
}

// readSnapshotWhere reads snapshot frames until pred accepts one.
func readSnapshotWhere(t *testing.T, conn *websocket.Conn, pred func(wsFrame) bool) wsFrame {
	t.Helper()
	for i := 0; i < 32; i++ {
		frame := readUntil(t, conn, "snapshot")
		if pred(frame) {
			return frame
		}
	}
	t.Fatal("no matching snapshot frame received")
	return nil
}

func dialChatSocket(t *testing.T, store storage.Store, reply string) *websocket.Conn {
	t.Helper()
	router := gin.New()
	router.GET("/v1/chat/ws", HandleChatWebSocket(store, &stubAI{reply: reply}, testResolver()))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/chat/ws?token=token-ani"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func messageCount(frame wsFrame) int {
	msgs, _ := frame["messages"].([]interface{})
	return len(msgs)
}

func TestChatWebSocket_SessionCreatedOnConnect(t *testing.T) {
	conn := dialChatSocket(t, storage.NewMemoryStore(), "balasan")

	frame := readUntil(t, conn, "session_created")
	assert.NotEmpty(t, frame["sessionId"])
	assert.Equal(t, "uid-ani", frame["userId"])
}

func TestChatWebSocket_SendDeliversSnapshots(t *testing.T) {
	conn := dialChatSocket(t, storage.NewMemoryStore(), "Tensi normal.")
	readUntil(t, conn, "session_created")

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "send", Message: "Tensi saya 120/80"}))

	full := readSnapshotWhere(t, conn, func(f wsFrame) bool {
		return messageCount(f) == 2 && f["thinking"] == false
	})
	msgs := full["messages"].([]interface{})
	first := msgs[0].(map[string]interface{})
	second := msgs[1].(map[string]interface{})
	assert.Equal(t, "Tensi saya 120/80", first["text"])
	assert.Equal(t, "Tensi normal.", second["text"])
	assert.Equal(t, "ai", second["sender"])
}

func TestChatWebSocket_NewChatAndSwitch(t *testing.T) {
	conn := dialChatSocket(t, storage.NewMemoryStore(), "balasan")
	created := readUntil(t, conn, "session_created")
	firstID := created["sessionId"].(string)

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "send", Message: "sesi pertama"}))
	readSnapshotWhere(t, conn, func(f wsFrame) bool {
		return messageCount(f) == 2 && f["thinking"] == false
	})

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "new_chat"}))
	fresh := readUntil(t, conn, "session_created")
	assert.NotEqual(t, firstID, fresh["sessionId"])

	// Switching back replays the old session in full.
	require.NoError(t, conn.WriteJSON(WSRequest{Action: "switch_session", SessionID: firstID}))
	replay := readSnapshotWhere(t, conn, func(f wsFrame) bool {
		return f["sessionId"] == firstID && messageCount(f) == 2
	})
	assert.Equal(t, firstID, replay["sessionId"])
}

func TestChatWebSocket_ListSessions(t *testing.T) {
	conn := dialChatSocket(t, storage.NewMemoryStore(), "balasan")
	readUntil(t, conn, "session_created")

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "send", Message: "topik satu"}))
	readSnapshotWhere(t, conn, func(f wsFrame) bool {
		return messageCount(f) == 2 && f["thinking"] == false
	})

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "list_sessions"}))
	frame := readUntil(t, conn, "sessions")
	sessions, _ := frame["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	entry := sessions[0].(map[string]interface{})
	assert.Equal(t, "topik satu", entry["title"])
}

func TestChatWebSocket_UnknownActionAndEmptySend(t *testing.T) {
	conn := dialChatSocket(t, storage.NewMemoryStore(), "balasan")
	readUntil(t, conn, "session_created")

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "explode"}))
	frame := readUntil(t, conn, "error")
	assert.Contains(t, frame["error"], "unknown action")

	require.NoError(t, conn.WriteJSON(WSRequest{Action: "send", Message: "  "}))
	frame = readUntil(t, conn, "error")
	assert.Equal(t, "message is empty", frame["error"])
}

func TestChatWebSocket_FailedIdentityGetsErrorFrame(t *testing.T) {
	store := storage.NewMemoryStore()
	router := gin.New()
	// No validator and no anonymous fallback: resolution can only fail.
	router.GET("/v1/chat/ws", HandleChatWebSocket(store, &stubAI{reply: "ok"},
		identity.NewResolver(nil, "", false)))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame := readUntil(t, conn, "error")
	assert.Equal(t, "failed to initialize session", frame["error"])

	// The server closes the socket without ever creating a session.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var next wsFrame
		if err := conn.ReadJSON(&next); err != nil {
			break
		}
		assert.NotEqual(t, "session_created", next["action"])
	}
}

func TestSnapshotPump_StalledConsumerNeverBlocksEnqueue(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var delivered []string
	pump := newSnapshotPump(func(snap session.Snapshot) {
		<-gate
		mu.Lock()
		delivered = append(delivered, snap.SessionID)
		mu.Unlock()
	})
	defer pump.stop()

	// The consumer is wedged behind the gate; enqueue must still return
	// promptly for every snapshot. This is what keeps a dead websocket
	// peer from blocking the store's publish path.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			pump.enqueue(session.Snapshot{SessionID: fmt.Sprintf("s-%03d", i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked behind a stalled consumer")
	}

	close(gate)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) > 0 && delivered[len(delivered)-1] == "s-099"
	}, 5*time.Second, 10*time.Millisecond, "newest snapshot must survive the overflow drops")

	// Whatever subset survived, delivery order matches enqueue order.
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(delivered); i++ {
		assert.Less(t, delivered[i-1], delivered[i])
	}
}
