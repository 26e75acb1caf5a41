package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"koltracker/clients/gist"
	"koltracker/config"

	"go.uber.org/zap"
)

// PeriodMetrics holds PnL aggregates for one lookback window.
type PeriodMetrics struct {
	Pnl          float64   `json:"pnl"`
	WinRate      int       `json:"winRate"` // Rounded percent
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Trades       int       `json:"trades"`
	Volume       float64   `json:"volume"`
	TokensTraded int       `json:"tokensTraded"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// KOL is one tracked wallet with its display info and PnL state.
type KOL struct {
	ID     int    `json:"id"`
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Chain  string `json:"chain"`
	Wallet string `json:"wallet"` // Short display form
	Full   string `json:"full"`   // Full base58 address
	Group  string `json:"group"`
	Source string `json:"source"`

	// Legacy flat fields mirror the most recent period refresh so older
	// consumers keep working
	Pnl     float64 `json:"pnl"`
	WinRate int     `json:"winRate"`
	Trades  int     `json:"trades"`
	Vol24   float64 `json:"vol24"`

	AlertOn bool `json:"alertOn"`

	Metrics map[string]PeriodMetrics `json:"metrics,omitempty"`

	PnlUpdated time.Time `json:"pnlUpdated,omitempty"`
	PnlPeriod  string    `json:"pnlPeriod,omitempty"`
}

type fallbackKol struct {
	name   string
	handle string
	wallet string
	group  string
}

// kolsFallback seeds the roster when the KV store has no saved list.
var kolsFallback = []fallbackKol{
	{"Santos", "@santos", "DXwuEuLCjq44dHJtBNc6cNGyduHrQ7YwJSZdP69VXGFH", "FRD"},
	{"Trutinha", "@Trutinha", "EeZDLghjJmEwXP3LQb5yL3okBfQ5R6NJpVYfXA2pR1NF", "CPD"},
	{"Trutinha (2)", "@Trutinha", "FdRxF4HEP5FmzZGv8Y7MWf892yffDawnva62qnhe8GAn", "CPD"},
	{"ZecaPiranha", "@ZecaPiranha", "EHP4W8X5kwXK1EQHQwy3gGRZzbfYAbST2jJpxVELPUCB", "CR"},
	{"tech", "@tech", "5d3jQcuUvsuHyZkhdp78FFqc7WogrzZpTtec1X9VNkuE", "CR"},
	{"Krill", "@Krill", "9o5Q4NFkpsejMaanvaFirzFqWpy1w2emVUiad6ZJaRZr", ""},
	{"Gabriel Amaral", "@GabrielAmaral", "4FMxMnarfvEFuazzNu4hvsJQCSnBYKLFyUHBG6e5GCTk", ""},
	{"Augusto", "@Augusto", "3B9KnGjfGdyHoc8GbJa92im6kkBjfsvHHZkZVW2h1cHq", ""},
	{"Simonsen", "@Simonsen", "4gMTSVYy9LutsZUDNAYMhFz3BZoTNwvrF7sveCpwbVaz", ""},
	{"Ellenth", "@Ellenth", "DGdVBQMLRZoDkArWwiWDmbL1rr9XEjQHFW6CkfnHbFM9", ""},
	{"Dijair Silva", "@DijairSilva", "F67jSGtrHoHhu5yTNWancFs2pNiJjgaotJQFynDs1bne", ""},
	{"i dont lose", "@idontlose", "ChTRJGdZ3gdw6iw32YshvWYhaUYLeeGomuSHN59Pmpcz", ""},
	{"henry", "@henry", "H34P7WHdbdaGDWgQJv98wuDAkLi17e9Z5K7F2Tsqek2z", ""},
	{"GreatShow", "@GreatShow", "oFbi2R6wuE76728Y2qLurUxsFGKhN8yGr3EhgyQjHCu", ""},
	{"squinsol", "@squinsol", "3p5Dj6Ef72Q6uVX81K4Snr7grJE83YFUyaNyM4E137WB", ""},
	{"Cardoso", "@Cardoso", "G3VdHpbsqgnbdS44nvvKUr28qk1zUBGcocvyzaF9HFxY", "FRD"},
	{"Dusty", "@Dusty", "3TAHqJMp1bo2G6okNSJs3UWc9SugYxiaB7AFPa3nARGX", "FRD"},
	{"friv", "@friv", "HHiuG1g3zqihVtW8ZfGknKWq1BCjtodZKTmPdE8XUJgh", ""},
	{"friv (2)", "@friv", "GMmS3WV8oFL9ajGpYvfZHCHUidTEaAJwWBucbWT8xAVY", ""},
	{"mstzera", "@mstzera", "fZgAzfgvgBFTZAZuxdKf89jcYsKbCTFFUNKe9gCygqb", ""},
	{"angelical", "@angelical", "GvtQAgZDDnRhDMyne9pwZagWijFQh6ZbDxHfDcAzJvWu", ""},
	{"cross", "@cross", "7BFAAyyxi6j8AUv6RgUBCYC5EM3RWPTZjDrafv4Txjva", ""},
}

// Roster holds the tracked KOL list. It loads from the KV store when one is
// configured, falling back to the embedded list otherwise.
type Roster struct {
	logger   *zap.Logger
	store    gist.Storage
	fileName string

	mu    sync.RWMutex
	kols  []*KOL
	dirty bool
}

// NewRoster creates a roster backed by the given storage. Store may be nil,
// in which case the roster runs from the fallback list only.
func NewRoster(logger *zap.Logger, store gist.Storage, cfg *config.Config) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Roster{
		logger:   logger.Named("roster"),
		store:    store,
		fileName: cfg.Roster.FileName,
	}
}

// Load populates the roster from the KV store, or from the embedded
// fallback list when the store is empty or unavailable.
func (r *Roster) Load(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil && r.store.IsEnabled() {
		var kols []*KOL
		if err := r.store.LoadJSON(ctx, r.fileName, &kols); err != nil {
			r.logger.Warn("failed to load roster from store, using fallback", zap.Error(err))
		} else if len(kols) > 0 {
			for _, k := range kols {
				if k.Metrics == nil {
					k.Metrics = make(map[string]PeriodMetrics)
				}
			}
			r.kols = kols
			r.logger.Info("loaded roster from store", zap.Int("kols", len(kols)))
			return
		}
	}

	r.kols = make([]*KOL, 0, len(kolsFallback))
	for i, f := range kolsFallback {
		r.kols = append(r.kols, &KOL{
			ID:      i + 1,
			Rank:    i + 1,
			Name:    f.name,
			Handle:  f.handle,
			Chain:   "SOL",
			Wallet:  ShortWallet(f.wallet),
			Full:    f.wallet,
			Group:   f.group,
			Source:  "fallback",
			Metrics: make(map[string]PeriodMetrics),
		})
	}

	r.logger.Info("loaded fallback roster", zap.Int("kols", len(r.kols)))
}

// Save persists the roster to the KV store if one is configured.
func (r *Roster) Save(ctx context.Context) error {
	if r.store == nil || !r.store.IsEnabled() {
		return nil
	}

	r.mu.Lock()
	kols := r.snapshotLocked()
	r.dirty = false
	r.mu.Unlock()

	if err := r.store.SaveJSON(ctx, r.fileName, kols); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return fmt.Errorf("save roster: %w", err)
	}

	return nil
}

// IsDirty reports whether there are unsaved roster changes.
func (r *Roster) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// All returns a copy of every KOL, sorted by rank.
func (r *Roster) All() []*KOL {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kols := r.snapshotLocked()
	sort.SliceStable(kols, func(i, j int) bool {
		return kols[i].Rank < kols[j].Rank
	})
	return kols
}

// snapshotLocked deep-copies the KOL list. Callers hold at least a read lock.
func (r *Roster) snapshotLocked() []*KOL {
	kols := make([]*KOL, 0, len(r.kols))
	for _, k := range r.kols {
		c := *k
		c.Metrics = make(map[string]PeriodMetrics, len(k.Metrics))
		for p, m := range k.Metrics {
			c.Metrics[p] = m
		}
		kols = append(kols, &c)
	}
	return kols
}

// Get returns a copy of the KOL with the given full wallet address.
func (r *Roster) Get(wallet string) (*KOL, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.kols {
		if k.Full == wallet {
			c := *k
			c.Metrics = make(map[string]PeriodMetrics, len(k.Metrics))
			for p, m := range k.Metrics {
				c.Metrics[p] = m
			}
			return &c, true
		}
	}
	return nil, false
}

// Contains reports whether a full wallet address is on the roster.
func (r *Roster) Contains(wallet string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.kols {
		if k.Full == wallet {
			return true
		}
	}
	return false
}

// Wallets returns every full wallet address on the roster.
func (r *Roster) Wallets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallets := make([]string, 0, len(r.kols))
	for _, k := range r.kols {
		if k.Full != "" {
			wallets = append(wallets, k.Full)
		}
	}
	return wallets
}

// Size returns the roster length.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kols)
}

// Add appends a new KOL. Duplicate wallets are rejected.
func (r *Roster) Add(name, handle, wallet, group string) (*KOL, error) {
	if wallet == "" {
		return nil, fmt.Errorf("wallet address required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	maxID := 0
	for _, k := range r.kols {
		if k.Full == wallet {
			return nil, fmt.Errorf("wallet already tracked")
		}
		if k.ID > maxID {
			maxID = k.ID
		}
	}

	kol := &KOL{
		ID:      maxID + 1,
		Rank:    len(r.kols) + 1,
		Name:    name,
		Handle:  handle,
		Chain:   "SOL",
		Wallet:  ShortWallet(wallet),
		Full:    wallet,
		Group:   group,
		Source:  "manual",
		Metrics: make(map[string]PeriodMetrics),
	}
	r.kols = append(r.kols, kol)
	r.dirty = true

	c := *kol
	return &c, nil
}

// Remove deletes a KOL by full wallet address.
func (r *Roster) Remove(wallet string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, k := range r.kols {
		if k.Full == wallet {
			r.kols = append(r.kols[:i], r.kols[i+1:]...)
			r.dirty = true
			return true
		}
	}
	return false
}

// SetAlert toggles the alert flag for one wallet.
func (r *Roster) SetAlert(wallet string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.kols {
		if k.Full == wallet {
			k.AlertOn = on
			r.dirty = true
			return true
		}
	}
	return false
}

// UpdateMetrics writes a period refresh result onto one KOL. The legacy flat
// fields mirror whichever period was refreshed most recently.
func (r *Roster) UpdateMetrics(wallet, period string, m PeriodMetrics) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.kols {
		if k.Full == wallet {
			if k.Metrics == nil {
				k.Metrics = make(map[string]PeriodMetrics)
			}
			k.Metrics[period] = m

			k.Pnl = m.Pnl
			k.WinRate = m.WinRate
			k.Trades = m.Trades
			k.Vol24 = m.Volume
			k.PnlUpdated = m.UpdatedAt
			k.PnlPeriod = period

			r.dirty = true
			return true
		}
	}
	return false
}

// SetRanks applies a wallet-to-rank assignment in one locked pass.
func (r *Roster) SetRanks(ranks map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.kols {
		if rank, ok := ranks[k.Full]; ok && k.Rank != rank {
			k.Rank = rank
			r.dirty = true
		}
	}
}

// ShortWallet renders a full address in its abbreviated display form.
func ShortWallet(wallet string) string {
	if len(wallet) <= 11 {
		return wallet
	}
	return wallet[:6] + "..." + wallet[len(wallet)-5:]
}

// NameForLog trims a KOL name for structured log fields.
func NameForLog(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > 24 {
		return name[:24]
	}
	return name
}
