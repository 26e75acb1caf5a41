package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"koltracker/clients/dexscreener"
	"koltracker/clients/helius"
	"koltracker/clients/heliusevents"
	"koltracker/clients/notifier"
	"koltracker/config"

	"go.uber.org/zap"
)

// IngestState is the live-feed connection state.
type IngestState string

const (
	IngestDisconnected IngestState = "disconnected"
	IngestConnecting   IngestState = "connecting"
	IngestSubscribed   IngestState = "subscribed"
)

// IngestStats is a snapshot of live-feed processing counters.
type IngestStats struct {
	State             IngestState `json:"state"`
	ReconnectAttempts int         `json:"reconnect_attempts"`
	Notifications     uint64      `json:"notifications"`
	Duplicates        uint64      `json:"duplicates"`
	TradesIngested    uint64      `json:"trades_ingested"`
	Discarded         uint64      `json:"discarded"`
	AlertsSent        uint64      `json:"alerts_sent"`
}

// Ingestor consumes the live transaction feed, dedups signatures, resolves
// each new transaction to a parsed swap, and pushes the resulting trade to
// the store, the broadcast hub, and the alert channels.
type Ingestor struct {
	logger      *zap.Logger
	events      *heliusevents.HeliusEventsClient
	helius      *helius.Client
	dexscreener *dexscreener.Client
	notifier    notifier.Notifier
	roster      *Roster
	store       *TradeStore
	sigCache    *SignatureCache
	quota       *QuotaTracker
	broadcaster *Broadcaster
	cfg         *config.Config

	mu       sync.Mutex
	state    IngestState
	attempts int

	notifications uint64
	duplicates    uint64
	ingested      uint64
	discarded     uint64
	alerts        uint64
}

// NewIngestor wires the live trade pipeline.
func NewIngestor(
	logger *zap.Logger,
	events *heliusevents.HeliusEventsClient,
	heliusClient *helius.Client,
	dex *dexscreener.Client,
	alerter notifier.Notifier,
	roster *Roster,
	store *TradeStore,
	sigCache *SignatureCache,
	quota *QuotaTracker,
	broadcaster *Broadcaster,
	cfg *config.Config,
) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ingestor{
		logger:      logger.Named("ingestor"),
		events:      events,
		helius:      heliusClient,
		dexscreener: dex,
		notifier:    alerter,
		roster:      roster,
		store:       store,
		sigCache:    sigCache,
		quota:       quota,
		broadcaster: broadcaster,
		cfg:         cfg,
		state:       IngestDisconnected,
	}
}

// backoffDelay computes the reconnect delay for the given attempt number
// (1-based): base doubling per attempt plus jitter, capped at max.
func backoffDelay(attempt int, base, max, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			break
		}
	}
	if jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter)))
	}
	if delay > max {
		delay = max
	}
	return delay
}

// Run owns the connect/consume/reconnect cycle until the context ends.
func (in *Ingestor) Run(ctx context.Context) {
	if in.events == nil || !in.events.IsEnabled() {
		in.logger.Info("live feed disabled, running on polling only")
		return
	}

	for {
		if ctx.Err() != nil {
			in.setState(IngestDisconnected)
			return
		}

		wallets := in.roster.Wallets()
		if len(wallets) == 0 {
			in.logger.Warn("no wallets on roster, live feed idle")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
			}
			continue
		}

		in.setState(IngestConnecting)

		if err := in.events.Connect(ctx, wallets); err != nil {
			in.logger.Warn("live feed connect failed", zap.Error(err))
			if !in.waitBackoff(ctx) {
				return
			}
			continue
		}

		in.consume(ctx)

		in.setState(IngestDisconnected)
		if !in.waitBackoff(ctx) {
			return
		}
	}
}

// waitBackoff sleeps the current backoff delay. Returns false if the
// context ended while waiting.
func (in *Ingestor) waitBackoff(ctx context.Context) bool {
	in.mu.Lock()
	in.attempts++
	attempt := in.attempts
	in.mu.Unlock()

	delay := backoffDelay(attempt,
		in.cfg.Helius.BackoffBase,
		in.cfg.Helius.BackoffMax,
		in.cfg.Helius.BackoffJitter,
	)

	in.logger.Info("live feed reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// consume drains messages from one connection until it drops.
func (in *Ingestor) consume(ctx context.Context) {
	defer in.events.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-in.events.Errors():
			in.logger.Warn("live feed connection lost", zap.Error(err))
			return

		case msg := <-in.events.Messages():
			if _, ok := heliusevents.ParseSubscriptionAck(msg); ok {
				// Backoff resets on a confirmed subscription, not on
				// socket open, so a server that accepts then drops
				// still backs off
				in.mu.Lock()
				in.attempts = 0
				in.state = IngestSubscribed
				in.mu.Unlock()
				in.logger.Info("live feed subscribed")
				continue
			}

			if n := heliusevents.ParseTransactionNotification(msg); n != nil {
				in.handleNotification(ctx, n)
			}
		}
	}
}

func (in *Ingestor) handleNotification(ctx context.Context, n *heliusevents.NotificationResult) {
	in.mu.Lock()
	in.notifications++
	in.mu.Unlock()

	if in.sigCache.Seen(n.Signature) {
		in.mu.Lock()
		in.duplicates++
		in.mu.Unlock()
		return
	}
	in.sigCache.Remember(n.Signature)

	wallet := n.FeePayer()
	kol, ok := in.roster.Get(wallet)
	if !ok {
		in.countDiscard()
		return
	}

	tx, err := in.helius.GetParsedTransaction(ctx, n.Signature)
	if in.quota != nil {
		in.quota.Record(1)
	}
	if err != nil || tx == nil {
		in.logger.Warn("failed to resolve live transaction",
			zap.String("signature", n.Signature),
			zap.Error(err),
		)
		in.countDiscard()
		return
	}

	trade := ParseSwap(tx, wallet, in.cfg.Helius.SolPrice, in.cfg.Trades.MinTradeUSD)
	if trade == nil {
		in.countDiscard()
		return
	}
	trade.KolName = kol.Name

	var token *dexscreener.TokenData
	if in.dexscreener != nil {
		token = in.dexscreener.GetTokenData(ctx, trade.TokenMint)
	}
	if token != nil {
		trade.TokenName = token.Name
		if trade.TokenSymbol == "" {
			trade.TokenSymbol = token.Symbol
		}
		trade.MarketCap = token.MarketCap
	}

	if !in.store.Append(ctx, *trade) {
		in.mu.Lock()
		in.duplicates++
		in.mu.Unlock()
		return
	}

	in.mu.Lock()
	in.ingested++
	in.mu.Unlock()

	in.logger.Info("live trade ingested",
		zap.String("kol", NameForLog(kol.Name)),
		zap.String("side", trade.Side),
		zap.String("token", trade.TokenSymbol),
		zap.Float64("valueUsd", trade.ValueUSD),
	)

	if in.broadcaster != nil {
		in.broadcaster.Broadcast("trade", trade)
	}

	if kol.AlertOn && in.notifier != nil {
		alert := notifier.TradeAlert{
			KolName:     kol.Name,
			KolHandle:   kol.Handle,
			Wallet:      kol.Full,
			WalletRank:  kol.Rank,
			Side:        sideLabel(trade.Side),
			Signature:   trade.Signature,
			ValueUSD:    trade.ValueUSD,
			Source:      trade.Source,
			TokenMint:   trade.TokenMint,
			TokenName:   trade.TokenName,
			TokenSymbol: trade.TokenSymbol,
			MarketCap:   trade.MarketCap,
			Timestamp:   trade.Timestamp,
		}
		if token != nil {
			alert.PriceUsd = token.PriceUsd
			alert.Liquidity = token.Liquidity
		}
		in.notifier.SendTradeAlert(alert)

		in.mu.Lock()
		in.alerts++
		in.mu.Unlock()
	}
}

func (in *Ingestor) countDiscard() {
	in.mu.Lock()
	in.discarded++
	in.mu.Unlock()
}

func (in *Ingestor) setState(state IngestState) {
	in.mu.Lock()
	in.state = state
	in.mu.Unlock()
}

// State returns the current connection state.
func (in *Ingestor) State() IngestState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Stats returns a snapshot of feed counters.
func (in *Ingestor) Stats() IngestStats {
	in.mu.Lock()
	defer in.mu.Unlock()

	return IngestStats{
		State:             in.state,
		ReconnectAttempts: in.attempts,
		Notifications:     in.notifications,
		Duplicates:        in.duplicates,
		TradesIngested:    in.ingested,
		Discarded:         in.discarded,
		AlertsSent:        in.alerts,
	}
}

func sideLabel(side string) string {
	if side == "sell" {
		return "SELL"
	}
	return "BUY"
}
