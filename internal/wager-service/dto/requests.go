package dto

type PlaceWagerRequest struct {
	ParticipantID string `json:"participantId"` // endereço da carteira do apostador
	StakeCents    int64  `json:"stake_cents"`
	GameClass     string `json:"game_class"` // ex: "dice"
}

type CancelWagerRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AddRoundRequest struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"` // hex, com ou sem 0x
	Signature  string `json:"signature,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

type VerifyOutcomeRequest struct {
	Round          uint64 `json:"round"`
	ClaimedOutcome int    `json:"claimed_outcome"`
	Min            int    `json:"min"`
	Max            int    `json:"max"`
}

type VerifySeedRequest struct {
	SeedHex string `json:"seed_hex"`
}
