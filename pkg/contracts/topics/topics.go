package topics

const (
	// Wagers
	WagerPlaced  = "wager_placed"
	WagerMatched = "wager_matched"
	WagerSettled = "wager_settled"

	// Beacon
	BeaconRounds = "beacon_rounds"

	// DLQ
	WagerMatchedDLQ = "wager_matched_dlq"
)
