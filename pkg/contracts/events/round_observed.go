package events

// Evento publicado no tópico "beacon_rounds" pelo beacon-follower.
type RoundObserved struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Source     string `json:"source"` // ex: "drand-follower"
}
