package dto

import "time"

type WagerResponse struct {
	BetID        string     `json:"betId"`
	ParticipantA string     `json:"participant_a"`
	ParticipantB string     `json:"participant_b,omitempty"`
	StakeCents   int64      `json:"stake_cents"`
	GameClass    string     `json:"game_class"`
	Status       string     `json:"status"`
	BeaconRound  uint64     `json:"beacon_round,omitempty"`
	Randomness   string     `json:"randomness,omitempty"`
	RollA        int        `json:"rollA,omitempty"`
	RollB        int        `json:"rollB,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	TxHash       string     `json:"tx_hash,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
}

type CommitmentResponse struct {
	SlotID     string `json:"slotId"`
	Commitment string `json:"commitment"`
}

type RevealResponse struct {
	SlotID  string `json:"slotId"`
	SeedHex string `json:"seed_hex"`
}

type VerifySeedResponse struct {
	SlotID string `json:"slotId"`
	Valid  bool   `json:"valid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
