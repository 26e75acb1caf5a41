package app

import (
	"context"
	"math"
	"time"

	"koltracker/clients/helius"
	"koltracker/config"

	"go.uber.org/zap"
)

// Lookback periods for PnL aggregation.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Stablecoin mints valued at face.
const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdtMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// PeriodWindow maps a period name to its lookback duration.
// Unknown periods default to daily.
func PeriodWindow(period string) time.Duration {
	switch period {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ValidPeriod reports whether the period name is one of the known windows.
func ValidPeriod(period string) bool {
	switch period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

func isStablecoin(mint string) bool {
	return mint == usdcMint || mint == usdtMint
}

// ParseSwap turns an enhanced transaction into a Trade for the given wallet.
// Returns nil when the transaction has no identifiable token leg or the swap
// value falls under the dust threshold.
func ParseSwap(tx *helius.EnhancedTransaction, wallet string, solPrice, minTradeUSD float64) *Trade {
	if tx == nil || len(tx.TokenTransfers) == 0 {
		return nil
	}

	var tokenMint, tokenSymbol, side string
	var tokenAmount float64

	for _, tt := range tx.TokenTransfers {
		if tt.Mint == helius.SolMint || isStablecoin(tt.Mint) {
			continue
		}
		if tt.FromUserAccount != wallet && tt.ToUserAccount != wallet {
			continue
		}

		tokenMint = tt.Mint
		tokenSymbol = tt.TokenSymbol
		tokenAmount = tt.TokenAmount
		if tt.FromUserAccount == wallet {
			side = "sell"
		} else {
			side = "buy"
		}
		break
	}

	if tokenMint == "" || side == "" {
		return nil
	}

	// Swap value: stablecoin leg at face, otherwise the SOL leg priced at
	// the reference rate
	var value float64
	for _, tt := range tx.TokenTransfers {
		if isStablecoin(tt.Mint) && (tt.FromUserAccount == wallet || tt.ToUserAccount == wallet) {
			value = tt.TokenAmount
			break
		}
	}
	if value == 0 {
		for _, tt := range tx.TokenTransfers {
			if tt.Mint == helius.SolMint && (tt.FromUserAccount == wallet || tt.ToUserAccount == wallet) {
				value = tt.TokenAmount * solPrice
				break
			}
		}
	}
	if value == 0 {
		var lamports int64
		for _, nt := range tx.NativeTransfers {
			if nt.FromUserAccount == wallet || nt.ToUserAccount == wallet {
				if nt.Amount > lamports {
					lamports = nt.Amount
				}
			}
		}
		value = float64(lamports) / 1e9 * solPrice
	}

	if value < minTradeUSD {
		return nil
	}

	return &Trade{
		Signature:   tx.Signature,
		Wallet:      wallet,
		Side:        side,
		TokenMint:   tokenMint,
		TokenSymbol: tokenSymbol,
		TokenAmount: tokenAmount,
		ValueUSD:    value,
		Source:      tx.Source,
		Timestamp:   time.Unix(tx.Timestamp, 0),
	}
}

// MergeTrades combines stored trades with freshly fetched ones, deduping by
// signature. Stored records win because they carry enrichment (token names,
// market caps) the raw fetch lacks.
func MergeTrades(stored, fetched []Trade) []Trade {
	seen := make(map[string]struct{}, len(stored))
	out := make([]Trade, 0, len(stored)+len(fetched))

	for _, t := range stored {
		if _, ok := seen[t.Signature]; ok {
			continue
		}
		seen[t.Signature] = struct{}{}
		out = append(out, t)
	}
	for _, t := range fetched {
		if _, ok := seen[t.Signature]; ok {
			continue
		}
		seen[t.Signature] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FilterWindow drops trades older than the period lookback, measured from now.
func FilterWindow(trades []Trade, period string, now time.Time) []Trade {
	cutoff := now.Add(-PeriodWindow(period))

	var out []Trade
	for _, t := range trades {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// AggregatePnL computes period metrics from a trade set. Each token's PnL is
// its sell value minus its buy value; a token is a win when that figure is
// positive and a loss when negative. Win rate is wins over decided tokens
// as a rounded percent, zero when no token has nonzero PnL.
func AggregatePnL(trades []Trade, now time.Time) PeriodMetrics {
	type tokenAgg struct {
		buy  float64
		sell float64
	}

	tokens := make(map[string]*tokenAgg)
	var volume float64

	for _, t := range trades {
		agg, ok := tokens[t.TokenMint]
		if !ok {
			agg = &tokenAgg{}
			tokens[t.TokenMint] = agg
		}
		if t.Side == "sell" {
			agg.sell += t.ValueUSD
		} else {
			agg.buy += t.ValueUSD
		}
		volume += t.ValueUSD
	}

	var totalPnl float64
	var wins, losses int
	for _, agg := range tokens {
		pnl := agg.sell - agg.buy
		totalPnl += pnl
		switch {
		case pnl > 0:
			wins++
		case pnl < 0:
			losses++
		}
	}

	winRate := 0
	if wins+losses > 0 {
		winRate = int(math.Round(float64(wins) / float64(wins+losses) * 100))
	}

	return PeriodMetrics{
		Pnl:          totalPnl,
		WinRate:      winRate,
		Wins:         wins,
		Losses:       losses,
		Trades:       len(trades),
		Volume:       volume,
		TokensTraded: len(tokens),
		UpdatedAt:    now,
	}
}

// PnLEngine refreshes per-wallet PnL by merging locally stored trades with a
// fresh history pull.
type PnLEngine struct {
	logger *zap.Logger
	helius *helius.Client
	store  *TradeStore
	roster *Roster
	quota  *QuotaTracker

	solPrice     float64
	minTradeUSD  float64
	historyLimit int
}

// NewPnLEngine creates the PnL aggregation engine.
func NewPnLEngine(logger *zap.Logger, heliusClient *helius.Client, store *TradeStore, roster *Roster, quota *QuotaTracker, cfg *config.Config) *PnLEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PnLEngine{
		logger:       logger.Named("pnl"),
		helius:       heliusClient,
		store:        store,
		roster:       roster,
		quota:        quota,
		solPrice:     cfg.Helius.SolPrice,
		minTradeUSD:  cfg.Trades.MinTradeUSD,
		historyLimit: cfg.Tracker.HistoryLimit,
	}
}

// RefreshWallet recomputes one wallet's PnL for the given period and writes
// the result onto the roster. Returns the computed metrics.
func (e *PnLEngine) RefreshWallet(ctx context.Context, kol *KOL, period string) (PeriodMetrics, error) {
	window := PeriodWindow(period)
	now := time.Now()

	stored := e.store.ByWallet(ctx, kol.Full, window)

	var fetched []Trade
	if e.helius != nil && e.helius.IsEnabled() {
		txs := e.helius.FetchRecentSwaps(ctx, kol.Full, e.historyLimit)
		if e.quota != nil {
			e.quota.Record(1)
		}
		for i := range txs {
			if t := ParseSwap(&txs[i], kol.Full, e.solPrice, e.minTradeUSD); t != nil {
				t.KolName = kol.Name
				fetched = append(fetched, *t)
			}
		}
	}

	trades := FilterWindow(MergeTrades(stored, fetched), period, now)
	metrics := AggregatePnL(trades, now)

	e.roster.UpdateMetrics(kol.Full, period, metrics)

	e.logger.Debug("refreshed wallet pnl",
		zap.String("kol", NameForLog(kol.Name)),
		zap.String("period", period),
		zap.Float64("pnl", metrics.Pnl),
		zap.Int("winRate", metrics.WinRate),
		zap.Int("trades", metrics.Trades),
	)

	return metrics, nil
}
