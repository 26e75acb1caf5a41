package app

import (
	"context"
	"sync"
	"time"

	"koltracker/config"

	"go.uber.org/zap"
)

// TierName identifies one polling tier.
type TierName string

const (
	TierTop    TierName = "top5"    // Ranks 1-5
	TierMid    TierName = "mid5"    // Ranks 6-10
	TierBottom TierName = "bottom5" // Ranks 11-15
)

// TierState is the lifecycle state of one tier loop.
type TierState string

const (
	TierStateIdle     TierState = "idle"     // Not started yet
	TierStateWaiting  TierState = "waiting"  // Timer armed for next sweep
	TierStateSweeping TierState = "sweeping" // Sweep in progress
	TierStateStopped  TierState = "stopped"
)

// SweepResult is the outcome of refreshing one wallet during a sweep.
type SweepResult struct {
	Kol     *KOL
	Metrics PeriodMetrics
	Err     error
}

// SweepCallback is invoked after each completed sweep with the refreshed
// KOLs, the tier that swept, and the period used.
type SweepCallback func(updated []*KOL, tier TierName, period string)

// TierStatus is a snapshot of one tier loop for stats reporting.
type TierStatus struct {
	State      TierState `json:"state"`
	Interval   string    `json:"interval"`
	LastSweep  string    `json:"last_sweep,omitempty"`
	NextSweep  string    `json:"next_sweep,omitempty"`
	Sweeps     int64     `json:"sweeps"`
	LastOK     int       `json:"last_ok"`
	LastErrors int       `json:"last_errors"`
}

// SchedulerStats is a snapshot of the whole scheduler.
type SchedulerStats struct {
	Running       bool                    `json:"running"`
	CurrentPeriod string                  `json:"current_period"`
	Night         bool                    `json:"night_window"`
	Tiers         map[TierName]TierStatus `json:"tiers"`
}

// Scheduler drives the tiered polling loops. Each tier reschedules itself
// only after its sweep finishes, so a slow sweep delays the next one instead
// of overlapping it. Tier membership is re-read from the roster at sweep
// time, so rank changes move wallets between cadences on the next cycle.
type Scheduler struct {
	logger   *zap.Logger
	roster   *Roster
	engine   *PnLEngine
	cfg      config.TrackerConfig
	callback SweepCallback

	// Injectable clock for the night-window decision
	now func() time.Time

	mu            sync.Mutex
	currentPeriod string
	running       bool
	tiers         map[TierName]*TierStatus
}

// NewScheduler creates the tier scheduler. Callback may be nil.
func NewScheduler(logger *zap.Logger, roster *Roster, engine *PnLEngine, cfg *config.Config, callback SweepCallback) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		logger:        logger.Named("scheduler"),
		roster:        roster,
		engine:        engine,
		cfg:           cfg.Tracker,
		callback:      callback,
		now:           time.Now,
		currentPeriod: PeriodDaily,
		tiers: map[TierName]*TierStatus{
			TierTop:    {State: TierStateIdle, Interval: cfg.Tracker.TopInterval.String()},
			TierMid:    {State: TierStateIdle, Interval: cfg.Tracker.MidInterval.String()},
			TierBottom: {State: TierStateIdle, Interval: cfg.Tracker.BottomInterval.String()},
		},
	}
}

// Start launches the three tier loops. First sweeps are staggered so the
// tiers don't burst the API together at startup.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.tierLoop(ctx, TierTop, s.cfg.TopInitialDelay, s.cfg.TopInterval)
	go s.tierLoop(ctx, TierMid, s.cfg.MidInitialDelay, s.cfg.MidInterval)
	go s.tierLoop(ctx, TierBottom, s.cfg.BottomInitialDelay, s.cfg.BottomInterval)

	s.logger.Info("tier scheduler started",
		zap.Duration("topInterval", s.cfg.TopInterval),
		zap.Duration("midInterval", s.cfg.MidInterval),
		zap.Duration("bottomInterval", s.cfg.BottomInterval),
	)
}

func (s *Scheduler) tierLoop(ctx context.Context, tier TierName, initialDelay, interval time.Duration) {
	s.setTierState(tier, TierStateWaiting, s.now().Add(initialDelay))

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setTierState(tier, TierStateStopped, time.Time{})
			return
		case <-timer.C:
		}

		results := s.SweepTier(ctx, tier)

		if ctx.Err() != nil {
			s.setTierState(tier, TierStateStopped, time.Time{})
			return
		}

		delay := s.EffectiveInterval(interval, s.now())
		s.recordSweep(tier, results, s.now().Add(delay))
		timer.Reset(delay)
	}
}

// EffectiveInterval applies the night-window multiplier to a tier interval.
func (s *Scheduler) EffectiveInterval(interval time.Duration, at time.Time) time.Duration {
	if s.isNight(at) && s.cfg.NightMultiplier > 1 {
		return interval * time.Duration(s.cfg.NightMultiplier)
	}
	return interval
}

func (s *Scheduler) isNight(at time.Time) bool {
	hour := at.Hour()
	start, end := s.cfg.NightStartHour, s.cfg.NightEndHour
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// GetKolsByTier returns the roster slice this tier polls, by current rank.
func (s *Scheduler) GetKolsByTier(tier TierName) []*KOL {
	kols := s.roster.All() // Sorted by rank

	size := s.cfg.TierSize
	var lo, hi int
	switch tier {
	case TierTop:
		lo, hi = 0, size
	case TierMid:
		lo, hi = size, 2*size
	case TierBottom:
		lo, hi = 2*size, 3*size
	default:
		return nil
	}

	if lo >= len(kols) {
		return nil
	}
	if hi > len(kols) {
		hi = len(kols)
	}
	return kols[lo:hi]
}

// SweepTier refreshes every wallet in one tier, then recomputes full-roster
// ranks and fires the sweep callback.
func (s *Scheduler) SweepTier(ctx context.Context, tier TierName) []SweepResult {
	s.setTierState(tier, TierStateSweeping, time.Time{})

	period := s.CurrentPeriod()
	kols := s.GetKolsByTier(tier)

	s.logger.Info("tier sweep started",
		zap.String("tier", string(tier)),
		zap.String("period", period),
		zap.Int("wallets", len(kols)),
	)

	results := s.sweepWallets(ctx, kols, period)
	s.finishSweep(ctx, results, tier, period)
	return results
}

// ForceRefreshAll sweeps the entire roster at once with the given period and
// makes that period the scheduled default going forward.
func (s *Scheduler) ForceRefreshAll(ctx context.Context, period string) []SweepResult {
	if !ValidPeriod(period) {
		period = PeriodDaily
	}
	s.SetPeriod(period)

	kols := s.roster.All()

	s.logger.Info("full roster refresh started",
		zap.String("period", period),
		zap.Int("wallets", len(kols)),
	)

	results := s.sweepWallets(ctx, kols, period)
	s.finishSweep(ctx, results, "all", period)
	return results
}

func (s *Scheduler) sweepWallets(ctx context.Context, kols []*KOL, period string) []SweepResult {
	results := make([]SweepResult, 0, len(kols))

	for i, kol := range kols {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && s.cfg.WalletDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(s.cfg.WalletDelay):
			}
		}

		metrics, err := s.engine.RefreshWallet(ctx, kol, period)
		if err != nil {
			s.logger.Warn("wallet refresh failed",
				zap.String("kol", NameForLog(kol.Name)),
				zap.Error(err),
			)
		}
		results = append(results, SweepResult{Kol: kol, Metrics: metrics, Err: err})
	}

	return results
}

func (s *Scheduler) finishSweep(ctx context.Context, results []SweepResult, tier TierName, period string) {
	if ctx.Err() != nil {
		return
	}

	// Ranks are always recomputed over the full roster so tier membership
	// stays consistent across tiers sweeping at different cadences
	updated := s.roster.All()
	s.roster.SetRanks(RankKols(updated))

	ok, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			ok++
		}
	}

	s.logger.Info("sweep finished",
		zap.String("tier", string(tier)),
		zap.String("period", period),
		zap.Int("ok", ok),
		zap.Int("failed", failed),
	)

	if s.callback != nil {
		s.callback(s.roster.All(), tier, period)
	}
}

// CurrentPeriod returns the period scheduled sweeps use.
func (s *Scheduler) CurrentPeriod() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPeriod
}

// SetPeriod changes the period scheduled sweeps use.
func (s *Scheduler) SetPeriod(period string) {
	if !ValidPeriod(period) {
		return
	}
	s.mu.Lock()
	s.currentPeriod = period
	s.mu.Unlock()
}

// Stats returns a snapshot of scheduler state.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers := make(map[TierName]TierStatus, len(s.tiers))
	for name, st := range s.tiers {
		tiers[name] = *st
	}

	return SchedulerStats{
		Running:       s.running,
		CurrentPeriod: s.currentPeriod,
		Night:         s.isNight(s.now()),
		Tiers:         tiers,
	}
}

func (s *Scheduler) setTierState(tier TierName, state TierState, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tiers[tier]
	if !ok {
		return
	}
	st.State = state
	if !next.IsZero() {
		st.NextSweep = next.Format(time.RFC3339)
	}
}

func (s *Scheduler) recordSweep(tier TierName, results []SweepResult, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tiers[tier]
	if !ok {
		return
	}

	st.State = TierStateWaiting
	st.LastSweep = s.now().Format(time.RFC3339)
	st.NextSweep = next.Format(time.RFC3339)
	st.Sweeps++

	st.LastOK, st.LastErrors = 0, 0
	for _, r := range results {
		if r.Err != nil {
			st.LastErrors++
		} else {
			st.LastOK++
		}
	}
}
