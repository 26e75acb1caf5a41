package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"koltracker/config"

	"go.uber.org/zap"
)

// TokenData is a market snapshot for one token mint.
type TokenData struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	PriceUsd  float64 `json:"priceUsd"`
	MarketCap float64 `json:"marketCap"`
	Liquidity float64 `json:"liquidity"`
	Volume24h float64 `json:"volume24h"`
	DexID     string  `json:"dexId"`
	PairURL   string  `json:"pairUrl"`
}

type pairResponse struct {
	Pairs []struct {
		DexID     string `json:"dexId"`
		URL       string `json:"url"`
		PriceUsd  string `json:"priceUsd"`
		BaseToken struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"baseToken"`
		Liquidity struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		MarketCap float64 `json:"marketCap"`
		FDV       float64 `json:"fdv"`
	} `json:"pairs"`
}

type cacheEntry struct {
	data    *TokenData
	fetched time.Time
}

// Client fetches token market data from DexScreener. Lookups are cached
// with a short TTL because the same mint shows up repeatedly when a wallet
// trades in and out of a token.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	apiURL     string
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient creates a new DexScreener client.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Dexscreener.Timeout,
		},
		apiURL:   cfg.Dexscreener.APIURL,
		cacheTTL: cfg.Dexscreener.CacheTTL,
		cache:    make(map[string]cacheEntry),
	}
}

// GetTokenData looks up market data for a mint. Fails soft: any error
// yields nil so trade processing keeps going without the snapshot.
func (c *Client) GetTokenData(ctx context.Context, mint string) *TokenData {
	if mint == "" {
		return nil
	}

	c.mu.Lock()
	if entry, ok := c.cache[mint]; ok && time.Since(entry.fetched) < c.cacheTTL {
		c.mu.Unlock()
		return entry.data
	}
	c.mu.Unlock()

	data := c.fetch(ctx, mint)

	c.mu.Lock()
	c.cache[mint] = cacheEntry{data: data, fetched: time.Now()}
	c.mu.Unlock()

	return data
}

func (c *Client) fetch(ctx context.Context, mint string) *TokenData {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.apiURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("dexscreener request build failed", zap.Error(err))
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("dexscreener fetch failed",
			zap.String("mint", mint),
			zap.Error(err),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("dexscreener non-2xx",
			zap.String("mint", mint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil
	}

	var pr pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		c.logger.Warn("dexscreener response malformed", zap.Error(err))
		return nil
	}
	if len(pr.Pairs) == 0 {
		return nil
	}

	// The same mint trades on many pools; take the deepest one
	best := pr.Pairs[0]
	for _, p := range pr.Pairs[1:] {
		if p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}

	var price float64
	if best.PriceUsd != "" {
		fmt.Sscanf(best.PriceUsd, "%f", &price)
	}

	mc := best.MarketCap
	if mc == 0 {
		mc = best.FDV
	}

	return &TokenData{
		Name:      best.BaseToken.Name,
		Symbol:    best.BaseToken.Symbol,
		PriceUsd:  price,
		MarketCap: mc,
		Liquidity: best.Liquidity.Usd,
		Volume24h: best.Volume.H24,
		DexID:     best.DexID,
		PairURL:   best.URL,
	}
}
