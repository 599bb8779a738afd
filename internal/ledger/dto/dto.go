package dto

type RegisterRequest struct {
	BetID        string `json:"betId"`
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
	StakeCents   int64  `json:"stakeCents"`
}

type SettleRequest struct {
	BetID      string `json:"betId"`
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"` // hex 0x..., uint256
}

type SettleResponse struct {
	TxHash  string `json:"txHash"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type BetResponse struct {
	BetID     string `json:"betId"`
	Status    string `json:"status"` // PENDING | ACTIVE | SETTLED | CANCELED
	RollA     int    `json:"rollA,omitempty"`
	RollB     int    `json:"rollB,omitempty"`
	Winner    string `json:"winner,omitempty"` // lado "A" | "B" derivado on-chain
	SettledAt int64  `json:"settledAt,omitempty"`
}

type BalanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"` // decimal string, cabe em uint256
}
