package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Topic: obrigatório para subscribe/unsubscribe ("rounds" ou "bet:<betId>")
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}
