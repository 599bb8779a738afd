package prices

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKey = "prices:current"

// Current é o cache de preços servido em /v1/prices.
type Current struct {
	PolPrice  float64 `json:"pol_price"`
	UsdcPrice float64 `json:"usdc_price"`
	Source    string  `json:"source"`
	UpdatedAt int64   `json:"updated_at"`
}

// Ticker mantém os preços POL/USDC atualizados no Redis a partir do
// CoinGecko. Best-effort: falha de fetch mantém o último valor.
type Ticker struct {
	Log      *zap.Logger
	Rdb      *redis.Client
	URL      string
	Interval time.Duration
	HTTP     *http.Client
}

func NewTicker(log *zap.Logger, rdb *redis.Client, url string) *Ticker {
	return &Ticker{
		Log:      log,
		Rdb:      rdb,
		URL:      url,
		Interval: 30 * time.Second,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Run busca imediatamente e depois a cada intervalo, até o contexto fechar.
func (t *Ticker) Run(ctx context.Context) {
	t.refresh(ctx)
	tick := time.NewTicker(t.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.refresh(ctx)
		}
	}
}

func (t *Ticker) refresh(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return
	}
	res, err := t.HTTP.Do(req)
	if err != nil {
		t.Log.Warn("prices fetch failed", zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Log.Warn("prices fetch status", zap.Int("status", res.StatusCode))
		return
	}

	// formato do CoinGecko: {"pol-ex-matic":{"usd":0.11},"usd-coin":{"usd":1.0}}
	var body map[string]map[string]float64
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Log.Warn("prices decode failed", zap.Error(err))
		return
	}

	cur := Current{PolPrice: 0.11, UsdcPrice: 1.0, Source: "coingecko", UpdatedAt: time.Now().Unix()}
	if v, ok := body["pol-ex-matic"]["usd"]; ok {
		cur.PolPrice = v
	}
	if v, ok := body["usd-coin"]["usd"]; ok {
		cur.UsdcPrice = v
	}

	b, _ := json.Marshal(cur)
	if err := t.Rdb.Set(ctx, cacheKey, b, 5*time.Minute).Err(); err != nil {
		t.Log.Warn("prices cache set failed", zap.Error(err))
	}
}

// Get lê o cache de preços. ok=false quando nunca houve fetch com sucesso.
func Get(ctx context.Context, rdb *redis.Client) (Current, bool, error) {
	b, err := rdb.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		return Current{}, false, nil
	}
	if err != nil {
		return Current{}, false, err
	}
	var cur Current
	if err := json.Unmarshal(b, &cur); err != nil {
		return Current{}, false, err
	}
	return cur, true, nil
}
