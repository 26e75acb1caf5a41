package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"koltracker/config"
	"net/http"

	"go.uber.org/zap"
)

// SolMint is the wrapped-SOL mint, treated as the quote currency and never
// as the traded token.
const SolMint = "So11111111111111111111111111111111111111112"

// TokenTransfer is a token movement inside an enhanced transaction.
type TokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	Mint             string  `json:"mint"`
	TokenSymbol      string  `json:"tokenSymbol"`
	TokenAmount      float64 `json:"tokenAmount"`
}

// NativeTransfer is a lamport movement inside an enhanced transaction.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

// EnhancedTransaction is the parsed transaction shape returned by the
// Helius Enhanced Transactions API.
type EnhancedTransaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"` // unix seconds
	Type            string           `json:"type"`
	Source          string           `json:"source"`
	FeePayer        string           `json:"feePayer"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
}

// Client talks to the Helius REST API. All calls here count against the
// provider's monthly request quota.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	enabled    bool
}

// NewClient creates a new Helius API client.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Helius.APIKey == "" {
		logger.Warn("HELIUS_API_KEY not set, historical fetches will be disabled")
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Helius.FetchTimeout,
		},
		apiURL:  cfg.Helius.APIURL,
		apiKey:  cfg.Helius.APIKey,
		enabled: cfg.Helius.Enabled && cfg.Helius.APIKey != "",
	}
}

// IsEnabled returns true if the client is configured for quota-metered calls.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// FetchRecentSwaps pulls up to limit swap-typed transactions for one wallet.
// Fails soft: transport errors and malformed responses yield an empty slice
// and a warning, never an error to the caller.
func (c *Client) FetchRecentSwaps(ctx context.Context, wallet string, limit int) []EnhancedTransaction {
	if !c.enabled {
		return nil
	}

	url := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s&type=SWAP&limit=%d",
		c.apiURL, wallet, c.apiKey, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("helius request build failed", zap.Error(err))
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("helius history fetch failed",
			zap.String("wallet", shortAddr(wallet)),
			zap.Error(err),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("helius history fetch non-2xx",
			zap.String("wallet", shortAddr(wallet)),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil
	}

	var txs []EnhancedTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		c.logger.Warn("helius history response malformed",
			zap.String("wallet", shortAddr(wallet)),
			zap.Error(err),
		)
		return nil
	}

	c.logger.Debug("fetched wallet history",
		zap.String("wallet", shortAddr(wallet)),
		zap.Int("transactions", len(txs)),
	)

	return txs
}

// GetParsedTransaction resolves a single signature through the transaction
// detail endpoint. Returns nil if the transaction cannot be parsed.
func (c *Client) GetParsedTransaction(ctx context.Context, signature string) (*EnhancedTransaction, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("helius client not configured")
	}

	url := fmt.Sprintf("%s/v0/transactions?api-key=%s", c.apiURL, c.apiKey)
	reqBody, err := json.Marshal(map[string]any{
		"transactions": []string{signature},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(body))
	}

	var txs []EnhancedTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}

	return &txs[0], nil
}

func shortAddr(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8]
}
