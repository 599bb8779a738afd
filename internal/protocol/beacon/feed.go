package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrBeaconUnavailable = errors.New("beacon unavailable")

// Feed é a capability externa de busca de rounds na rede do beacon.
// Erros de rede/timeout saem embrulhados em ErrBeaconUnavailable.
type Feed interface {
	FetchLatest(ctx context.Context) (*Round, error)
	FetchByRound(ctx context.Context, round uint64) (*Round, error)
}

// DrandClient lê a API HTTP pública do drand (https://api.drand.sh).
type DrandClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewDrandClient(base string) *DrandClient {
	return &DrandClient{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// payload da API pública do drand; timestamp não vem na resposta, então o
// round é carimbado com o horário de observação
type drandResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

func (c *DrandClient) FetchLatest(ctx context.Context) (*Round, error) {
	return c.fetch(ctx, c.BaseURL+"/public/latest")
}

func (c *DrandClient) FetchByRound(ctx context.Context, round uint64) (*Round, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/public/%d", c.BaseURL, round))
}

func (c *DrandClient) fetch(ctx context.Context, url string) (*Round, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBeaconUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: drand http %d", ErrBeaconUnavailable, res.StatusCode)
	}

	var out drandResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrBeaconUnavailable, err)
	}
	if _, err := ToInteger(out.Randomness); err != nil {
		return nil, err
	}

	return &Round{
		Round:      out.Round,
		Randomness: out.Randomness,
		Signature:  out.Signature,
		Timestamp:  time.Now().Unix(),
		Verified:   true,
	}, nil
}
