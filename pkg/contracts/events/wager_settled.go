package events

import "time"

// Evento emitido após a liquidação on-chain de uma aposta.
type WagerSettled struct {
	BetID       string    `json:"betId"`
	BeaconRound uint64    `json:"beaconRound"`
	Randomness  string    `json:"randomness"`
	RollA       int       `json:"rollA"`
	RollB       int       `json:"rollB"`
	Winner      string    `json:"winner"` // participant vencedor
	TxHash      string    `json:"txHash,omitempty"`
	Ts          time.Time `json:"ts"`
}
