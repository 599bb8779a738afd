package events

// Broadcast é o envelope publicado no canal Redis Pub/Sub que alimenta o
// WebSocket do wager-service. Topic: "rounds" ou "bet:<betId>".
type Broadcast struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}
