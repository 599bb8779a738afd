package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func TestSubscribeAndBroadcast(t *testing.T) {
	hub, conn := dialTestHub(t)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "rounds"}))

	// a assinatura é processada na goroutine da conexão; espera ficar visível
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subs["rounds"]) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(events.Broadcast{Topic: "rounds", Payload: map[string]any{"round": 17598}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Broadcast
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "rounds", got.Topic)
}

func TestBroadcastSkipsOtherTopics(t *testing.T) {
	hub, conn := dialTestHub(t)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "bet:abc"}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subs["bet:abc"]) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(events.Broadcast{Topic: "rounds", Payload: "nope"})
	hub.Broadcast(events.Broadcast{Topic: "bet:abc", Payload: "yes"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var got events.Broadcast
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "bet:abc", got.Topic)
}

func TestUnsubscribe(t *testing.T) {
	hub, conn := dialTestHub(t)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "rounds"}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subs["rounds"]) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", Topic: "rounds"}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subs["rounds"]) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastDuringSubscribeChurn(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// broadcasts contínuos enquanto clientes entram e saem do tópico; o
	// snapshot das conexões tem que segurar a mutação concorrente do set
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.Broadcast(events.Broadcast{Topic: "rounds", Payload: i})
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "rounds"})
			time.Sleep(10 * time.Millisecond)
			_ = conn.WriteJSON(ClientMsg{Type: "unsubscribe", Topic: "rounds"})
		}()
	}
	wg.Wait()
	<-done
}

func TestPingPong(t *testing.T) {
	_, conn := dialTestHub(t)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got map[string]string
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "pong", got["type"])
}
