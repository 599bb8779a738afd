package events

// Evento emitido quando dois apostadores são pareados e a aposta vira ACTIVE.
// O settlement-worker consome este tópico para disparar a liquidação.
type WagerMatched struct {
	BetID        string `json:"bet_id"`
	ParticipantA string `json:"participant_a"`
	ParticipantB string `json:"participant_b"`
	StakeCents   int64  `json:"stake_cents"`
	GameClass    string `json:"game_class"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
