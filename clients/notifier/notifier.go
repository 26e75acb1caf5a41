package notifier

import (
	"time"
)

// TradeAlert contains all the data needed for a swap alert notification.
type TradeAlert struct {
	// Wallet info
	KolName    string
	KolHandle  string
	Wallet     string
	WalletRank int

	// Swap info
	Side      string // BUY or SELL
	Signature string
	ValueUSD  float64
	Source    string // Dex program that executed the swap

	// Token info
	TokenMint   string
	TokenName   string
	TokenSymbol string
	MarketCap   float64
	PriceUsd    float64
	Liquidity   float64

	Timestamp time.Time
}

// Notifier is the interface for sending trade alerts to various channels.
type Notifier interface {
	// SendTradeAlert sends a trade alert notification.
	SendTradeAlert(alert TradeAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendTradeAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendTradeAlert(alert TradeAlert) {
	for _, n := range m.notifiers {
		n.SendTradeAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
