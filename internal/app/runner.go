package app

import (
	"context"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	clts "koltracker/clients"
	"koltracker/config"

	"go.uber.org/zap"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner wires the tracker components together and owns their lifecycles.
type Runner struct {
	clients *clts.Clients
	cfg     *config.Config

	roster      *Roster
	sigCache    *SignatureCache
	tradeStore  *TradeStore
	quota       *QuotaTracker
	engine      *PnLEngine
	scheduler   *Scheduler
	ingestor    *Ingestor
	broadcaster *Broadcaster

	healthServer *http.Server
	startTime    time.Time
}

// ServiceStats holds comprehensive service statistics.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Roster
	Roster struct {
		Kols        int  `json:"kols"`
		UnsavedEdit bool `json:"unsaved_changes"`
	} `json:"roster"`

	// Tier scheduler
	Scheduler SchedulerStats `json:"scheduler"`

	// Live feed pipeline
	Ingest IngestStats `json:"ingest"`

	// Live feed transport counters
	WebSocket struct {
		Enabled       bool   `json:"enabled"`
		Connected     bool   `json:"connected"`
		MessageCount  uint64 `json:"message_count"`
		LastMessageAt string `json:"last_message_at,omitempty"`
	} `json:"websocket"`

	// API quota accounting
	Quota QuotaStats `json:"quota"`

	// Caches
	Caches struct {
		Signatures   int `json:"signatures"`
		StoredTrades int `json:"stored_trades"`
	} `json:"caches"`

	// Broadcast hub
	Broadcast struct {
		Clients    int    `json:"clients"`
		EventsSent uint64 `json:"events_sent"`
	} `json:"broadcast"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
		GoVersion  string `json:"go_version"`
	} `json:"runtime"`
}

// NewRunner builds the component graph. Nothing starts until Run.
func NewRunner(clients *clts.Clients, cfg *config.Config) *Runner {
	logger := clients.Logger

	r := &Runner{
		clients: clients,
		cfg:     cfg,
	}

	r.broadcaster = NewBroadcaster(logger)
	r.roster = NewRoster(logger, clients.Gist, cfg)
	r.sigCache = NewSignatureCache(logger, cfg.Trades.MaxSignatures, cfg.Trades.EvictFraction)
	r.tradeStore = NewTradeStore(logger, clients.Gist, cfg)
	r.quota = NewQuotaTracker(logger, cfg.Tracker.MonthlyQuota)
	r.engine = NewPnLEngine(logger, clients.Helius, r.tradeStore, r.roster, r.quota, cfg)
	r.scheduler = NewScheduler(logger, r.roster, r.engine, cfg, r.onSweep)
	r.ingestor = NewIngestor(logger, clients.HeliusEvents, clients.Helius, clients.Dexscreener,
		clients.Notifier, r.roster, r.tradeStore, r.sigCache, r.quota, r.broadcaster, cfg)

	return r
}

// onSweep pushes refreshed standings to websocket subscribers.
func (r *Runner) onSweep(updated []*KOL, tier TierName, period string) {
	r.broadcaster.Broadcast("kols_update", map[string]any{
		"kols":      updated,
		"tier":      tier,
		"period":    period,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Run starts every component and blocks until the context ends.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger

	logger.Info("starting kol tracker",
		zap.String("commit", BuildCommit),
		zap.Duration("topInterval", r.cfg.Tracker.TopInterval),
		zap.Duration("midInterval", r.cfg.Tracker.MidInterval),
		zap.Duration("bottomInterval", r.cfg.Tracker.BottomInterval),
		zap.Bool("heliusEnabled", r.clients.Helius.IsEnabled()),
		zap.Bool("liveFeed", r.clients.HeliusEvents.IsEnabled()),
		zap.Bool("gistEnabled", r.clients.Gist.IsEnabled()),
	)

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	r.roster.Load(loadCtx)
	loadCancel()

	logger.Info("roster ready", zap.Int("kols", r.roster.Size()))

	go r.quota.Run(ctx)
	go r.ingestor.Run(ctx)
	go r.rosterSaveLoop(ctx)

	r.scheduler.Start(ctx)

	if r.cfg.StatsServer.Enabled {
		r.startStatsServer(r.cfg.StatsServer.Port)
		logger.Info("stats server started", zap.Int("port", r.cfg.StatsServer.Port))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	r.shutdown()
	return nil
}

// rosterSaveLoop periodically flushes unsaved roster changes to the store.
func (r *Runner) rosterSaveLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.roster.IsDirty() {
				continue
			}
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.roster.Save(saveCtx); err != nil {
				r.clients.Logger.Warn("periodic roster save failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *Runner) shutdown() {
	logger := r.clients.Logger

	// Final roster flush with a fresh context since the run context is done
	if r.roster.IsDirty() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := r.roster.Save(saveCtx); err != nil {
			logger.Warn("final roster save failed", zap.Error(err))
		}
		cancel()
	}

	r.broadcaster.Close()

	if err := r.clients.Notifier.Close(); err != nil {
		logger.Warn("notifier close failed", zap.Error(err))
	}

	if r.healthServer != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.healthServer.Shutdown(shutCtx); err != nil {
			logger.Warn("stats server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	logger.Info("shutdown complete")
}

// GetStats assembles the full service stats snapshot.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	uptime := time.Since(r.startTime)
	stats.StartTime = r.startTime.Format(time.RFC3339)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.Roster.Kols = r.roster.Size()
	stats.Roster.UnsavedEdit = r.roster.IsDirty()

	stats.Scheduler = r.scheduler.Stats()
	stats.Ingest = r.ingestor.Stats()
	stats.Quota = r.quota.Stats()

	wsStats := r.clients.HeliusEvents.Stats()
	stats.WebSocket.Enabled = r.clients.HeliusEvents.IsEnabled()
	stats.WebSocket.Connected = r.clients.HeliusEvents.IsConnected()
	stats.WebSocket.MessageCount = wsStats.MessageCount
	if !wsStats.LastMessageAt.IsZero() {
		stats.WebSocket.LastMessageAt = wsStats.LastMessageAt.Format(time.RFC3339)
	}

	stats.Caches.Signatures = r.sigCache.Size()
	stats.Caches.StoredTrades = r.tradeStore.Size()

	stats.Broadcast.Clients = r.broadcaster.ClientCount()
	stats.Broadcast.EventsSent = r.broadcaster.EventsSent()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = mem.HeapAlloc
	stats.Runtime.NumGC = mem.NumGC
	stats.Runtime.GoVersion = runtime.Version()

	return stats
}
