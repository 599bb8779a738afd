package events

type WagerPlaced struct {
	BetID       string `json:"bet_id"`
	Participant string `json:"participant"`
	StakeCents  int64  `json:"stake_cents"`
	GameClass   string `json:"game_class"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
