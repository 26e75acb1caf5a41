package app

import (
	"context"
	"sync"
	"time"

	"koltracker/clients/gist"
	"koltracker/config"

	"go.uber.org/zap"
)

// Trade is one parsed swap attributed to a tracked wallet.
type Trade struct {
	Signature   string    `json:"signature"`
	Wallet      string    `json:"wallet"` // Full address of the fee payer
	KolName     string    `json:"kolName,omitempty"`
	Side        string    `json:"side"` // "buy" or "sell"
	TokenMint   string    `json:"tokenMint"`
	TokenName   string    `json:"tokenName,omitempty"`
	TokenSymbol string    `json:"tokenSymbol,omitempty"`
	TokenAmount float64   `json:"tokenAmount,omitempty"`
	ValueUSD    float64   `json:"valueUsd"`
	MarketCap   float64   `json:"marketCap,omitempty"`
	Source      string    `json:"source,omitempty"` // Dex program name
	Timestamp   time.Time `json:"timestamp"`
}

// TradeStore keeps the newest trades in memory, newest first, and mirrors
// them to the KV store after every append. A failed save never blocks trade
// processing; the next append retries.
type TradeStore struct {
	logger    *zap.Logger
	store     gist.Storage
	fileName  string
	maxStored int

	mu     sync.RWMutex
	trades []Trade
	loaded bool
}

// NewTradeStore creates a trade store backed by the given storage. Store may
// be nil for a memory-only store.
func NewTradeStore(logger *zap.Logger, store gist.Storage, cfg *config.Config) *TradeStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxStored := cfg.Trades.MaxStored
	if maxStored <= 0 {
		maxStored = 500
	}

	return &TradeStore{
		logger:    logger.Named("trades"),
		store:     store,
		fileName:  cfg.Trades.FileName,
		maxStored: maxStored,
	}
}

// ensureLoadedLocked lazily pulls persisted trades on first access.
// Callers hold the write lock.
func (s *TradeStore) ensureLoadedLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	if s.store == nil || !s.store.IsEnabled() {
		return
	}

	var trades []Trade
	if err := s.store.LoadJSON(ctx, s.fileName, &trades); err != nil {
		s.logger.Warn("failed to load persisted trades", zap.Error(err))
		return
	}

	if len(trades) > s.maxStored {
		trades = trades[:s.maxStored]
	}
	s.trades = trades

	s.logger.Info("loaded persisted trades", zap.Int("trades", len(trades)))
}

// Append records a new trade at the head of the list. Trades whose signature
// is already stored are dropped silently, so the first recorded version of a
// swap wins. Returns true if the trade was stored.
func (s *TradeStore) Append(ctx context.Context, trade Trade) bool {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)

	for _, t := range s.trades {
		if t.Signature == trade.Signature {
			s.mu.Unlock()
			return false
		}
	}

	s.trades = append([]Trade{trade}, s.trades...)
	if len(s.trades) > s.maxStored {
		s.trades = s.trades[:s.maxStored]
	}

	snapshot := append([]Trade(nil), s.trades...)
	s.mu.Unlock()

	if s.store != nil && s.store.IsEnabled() {
		if err := s.store.SaveJSON(ctx, s.fileName, snapshot); err != nil {
			s.logger.Warn("failed to persist trades", zap.Error(err))
		}
	}

	return true
}

// All returns a copy of every stored trade, newest first.
func (s *TradeStore) All(ctx context.Context) []Trade {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)
	trades := append([]Trade(nil), s.trades...)
	s.mu.Unlock()
	return trades
}

// Recent returns up to limit trades no older than maxAge, newest first.
// A zero maxAge means no age filter; limit <= 0 means no count limit.
func (s *TradeStore) Recent(ctx context.Context, limit int, maxAge time.Duration) []Trade {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)
	defer s.mu.Unlock()

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var out []Trade
	for _, t := range s.trades {
		if !cutoff.IsZero() && t.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ByWallet returns stored trades for one wallet no older than maxAge,
// newest first.
func (s *TradeStore) ByWallet(ctx context.Context, wallet string, maxAge time.Duration) []Trade {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)
	defer s.mu.Unlock()

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var out []Trade
	for _, t := range s.trades {
		if t.Wallet != wallet {
			continue
		}
		if !cutoff.IsZero() && t.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Size returns the number of stored trades.
func (s *TradeStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
