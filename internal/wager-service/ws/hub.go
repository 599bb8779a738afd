package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

var wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "wager_ws_connections",
	Help: "Clientes WebSocket conectados",
})

// Hub gerencia conexões WebSocket e assinaturas por tópico
// Tópicos: "rounds" (rounds novos do beacon) e "bet:<betId>" (liquidações)
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// topic -> set of connections
	subs map[string]map[*websocket.Conn]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*websocket.Conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em tópicos e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	wsConnections.Inc()
	defer wsConnections.Dec()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.Topic]; !ok {
				h.subs[msg.Topic] = make(map[*websocket.Conn]struct{})
			}
			h.subs[msg.Topic][conn] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.Topic]; ok {
				delete(m, conn)
				if len(m) == 0 {
					delete(h.subs, msg.Topic)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for _, set := range h.subs {
		delete(set, conn)
	}
	h.mu.Unlock()
}

// Broadcast envia o payload pra todos os clientes inscritos no tópico.
// Copia as conexões ainda sob o lock: HandleWS muta o set concorrentemente,
// e iterar o map depois de soltar o lock corrompe a iteração.
func (h *Hub) Broadcast(b events.Broadcast) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[b.Topic]))
	for c := range h.subs[b.Topic] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	raw, _ := json.Marshal(b)
	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, raw)
	}
}
