package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultEndpoint = "https://api.coinbase.com/v2/prices/BTC-USD/spot"

// CoinbaseSource quotes the BTC/USD spot rate from the public coinbase
// price API. Quotes are cached briefly so a polling client cannot turn
// every status request into an upstream call.
type CoinbaseSource struct {
	Endpoint string
	Client   *http.Client
	CacheTTL time.Duration

	mu        sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
}

func NewCoinbaseSource() *CoinbaseSource {
	return &CoinbaseSource{
		Endpoint: defaultEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
		CacheTTL: time.Minute,
	}
}

type spotPriceResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

func (s *CoinbaseSource) BtcUsdRate(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cached.IsZero() && time.Since(s.fetchedAt) < s.CacheTTL {
		return s.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var body spotPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(body.Data.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate source returned a malformed amount %q: %w", body.Data.Amount, err)
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("rate source returned a non-positive rate %s", rate)
	}

	s.cached = rate
	s.fetchedAt = time.Now()
	return rate, nil
}
