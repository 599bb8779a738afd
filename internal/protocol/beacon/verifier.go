package beacon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/outcome"
)

var ErrMalformedRandomness = errors.New("malformed randomness hex")

// Verifier mantém o cache de rounds conhecidos e recalcula resultados a
// partir deles. Não faz I/O de rede — buscar rounds novos é papel do Feed.
type Verifier struct {
	store RoundStore
}

func NewVerifier(store RoundStore) *Verifier {
	return &Verifier{store: store}
}

// GetRound consulta o cache. ErrRoundNotFound quando o round não está lá.
func (v *Verifier) GetRound(ctx context.Context, round uint64) (*Round, error) {
	return v.store.Get(ctx, round)
}

// LatestRound retorna o round mais recente do cache.
func (v *Verifier) LatestRound(ctx context.Context) (*Round, error) {
	return v.store.Latest(ctx)
}

// AddRound insere um round no cache. Usado tanto pra rounds vindos do feed
// quanto pra rounds pré-carregados por operador/teste. A assinatura não é
// verificada criptograficamente — ponto de extensão conhecido: exigiria a
// chave pública da chain do beacon, que não faz parte deste escopo.
func (v *Verifier) AddRound(ctx context.Context, round uint64, randomnessHex, signature string, timestamp int64) error {
	if _, err := ToInteger(randomnessHex); err != nil {
		return err
	}
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}
	return v.store.Put(ctx, Round{
		Round:      round,
		Randomness: randomnessHex,
		Signature:  signature,
		Timestamp:  timestamp,
		Verified:   true,
	})
}

// ToInteger normaliza a randomness hex (com ou sem 0x) pra um inteiro de até
// 256 bits. Determinística e total sobre hex válido; ErrMalformedRandomness
// pra qualquer outra coisa.
func ToInteger(randomnessHex string) (*big.Int, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(randomnessHex, "0x"), "0X")
	if h == "" || len(h) > 64 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRandomness, randomnessHex)
	}
	for _, c := range h {
		ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRandomness, randomnessHex)
		}
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRandomness, randomnessHex)
	}
	return n, nil
}

// Verification é o resultado da conferência independente de um outcome.
// RoundNotFound vem dentro do resultado (Valid=false + Error preenchido),
// não como erro — a verificação é uma consulta.
type Verification struct {
	Valid          bool   `json:"valid"`
	Round          uint64 `json:"round"`
	Randomness     string `json:"randomness,omitempty"`
	ClaimedOutcome int    `json:"claimed_outcome"`
	ActualOutcome  int    `json:"actual_outcome,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
	Error          string `json:"error,omitempty"`
}

// VerifyOutcome recalcula o outcome do round e compara com o alegado.
// Qualquer terceiro consegue rodar isto só com o número do round e dois
// inteiros — não depende de nenhum estado do protocolo além do cache.
func (v *Verifier) VerifyOutcome(ctx context.Context, round uint64, claimed, min, max int) (*Verification, error) {
	if max < min {
		return nil, fmt.Errorf("%w: [%d,%d]", outcome.ErrInvalidRange, min, max)
	}

	r, err := v.store.Get(ctx, round)
	if errors.Is(err, ErrRoundNotFound) {
		return &Verification{
			Valid:          false,
			Round:          round,
			ClaimedOutcome: claimed,
			Error:          fmt.Sprintf("round %d not found in local cache", round),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	value, err := ToInteger(r.Randomness)
	if err != nil {
		return nil, err
	}
	actual, err := outcome.DeriveRange(value, min, max)
	if err != nil {
		return nil, err
	}

	return &Verification{
		Valid:          actual == claimed,
		Round:          round,
		Randomness:     r.Randomness,
		ClaimedOutcome: claimed,
		ActualOutcome:  actual,
		Explanation:    fmt.Sprintf("(%s %% %d) + %d = %d", value.String(), max-min+1, min, actual),
	}, nil
}
