package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Helius chain indexer
	Helius HeliusConfig `json:"helius"`

	// Tiered PnL polling
	Tracker TrackerConfig `json:"tracker"`

	// Trade store + signature cache
	Trades TradesConfig `json:"trades"`

	// Roster of tracked wallets
	Roster RosterConfig `json:"roster"`

	// DexScreener token lookups
	Dexscreener DexscreenerConfig `json:"dexscreener"`

	// Discord alerts
	Discord DiscordConfig `json:"discord"`

	// GitHub Gist - excluded from serialization (env var only)
	Gist GistConfig `json:"-"`

	// HTTP stats server
	StatsServer StatsServerConfig `json:"stats_server"`
}

// HeliusConfig holds Helius API configuration.
type HeliusConfig struct {
	APIKey  string `json:"-"` // Excluded - env var only
	RPCKey  string `json:"-"` // Excluded - env var only
	APIURL  string `json:"api_url"`
	WSURL   string `json:"ws_url"`
	Enabled bool   `json:"enabled"` // If false, historical fetches return empty

	// Reference price used to value native-SOL legs when no stablecoin leg exists
	SolPrice float64 `json:"sol_price"`

	FetchTimeout time.Duration `json:"fetch_timeout"`
	PingInterval time.Duration `json:"ping_interval"`

	// Reconnect backoff
	BackoffBase   time.Duration `json:"backoff_base"`
	BackoffMax    time.Duration `json:"backoff_max"`
	BackoffJitter time.Duration `json:"backoff_jitter"`
}

// TrackerConfig holds tiered polling configuration.
type TrackerConfig struct {
	TierSize       int           `json:"tier_size"`       // Wallets per tier (e.g., 5)
	TopInterval    time.Duration `json:"top_interval"`    // Ranks 1-5
	MidInterval    time.Duration `json:"mid_interval"`    // Ranks 6-10
	BottomInterval time.Duration `json:"bottom_interval"` // Ranks 11-15

	// Staggered first sweeps so tiers don't burst at startup
	TopInitialDelay    time.Duration `json:"top_initial_delay"`
	MidInitialDelay    time.Duration `json:"mid_initial_delay"`
	BottomInitialDelay time.Duration `json:"bottom_initial_delay"`

	WalletDelay time.Duration `json:"wallet_delay"` // Pause between per-wallet updates in a sweep

	// Low-activity window: intervals are doubled between these local hours
	NightStartHour  int `json:"night_start_hour"`
	NightEndHour    int `json:"night_end_hour"`
	NightMultiplier int `json:"night_multiplier"`

	HistoryLimit int   `json:"history_limit"` // Swaps pulled per wallet per sweep
	MonthlyQuota int64 `json:"monthly_quota"` // Provider free-tier request ceiling (advisory)
}

// TradesConfig holds trade store and signature cache configuration.
type TradesConfig struct {
	MaxStored     int     `json:"max_stored"`     // Trade store capacity
	FileName      string  `json:"file_name"`      // KV file for persisted trades
	MaxSignatures int     `json:"max_signatures"` // Signature cache ceiling
	EvictFraction float64 `json:"evict_fraction"` // Share of oldest ids dropped per eviction
	MinTradeUSD   float64 `json:"min_trade_usd"`  // Dust threshold for parsed swaps
}

// RosterConfig holds roster source configuration.
type RosterConfig struct {
	FileName string `json:"file_name"` // KV file holding the KOL list
}

// DexscreenerConfig holds DexScreener API configuration.
type DexscreenerConfig struct {
	APIURL   string        `json:"api_url"`
	CacheTTL time.Duration `json:"cache_ttl"`
	Timeout  time.Duration `json:"timeout"`
}

// DiscordConfig holds Discord alert configuration.
type DiscordConfig struct {
	BotToken  string `json:"-"` // Excluded - env var only
	ChannelID string `json:"channel_id"`
}

// GistConfig holds GitHub Gist configuration.
type GistConfig struct {
	Token  string `json:"-"` // Excluded - env var only
	GistID string `json:"-"` // Excluded - env var only
}

// StatsServerConfig holds the HTTP stats server configuration.
type StatsServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Helius: HeliusConfig{
			APIURL:        "https://api.helius.xyz",
			WSURL:         "wss://mainnet.helius-rpc.com",
			Enabled:       true,
			SolPrice:      170.0,
			FetchTimeout:  15 * time.Second,
			PingInterval:  25 * time.Second,
			BackoffBase:   5 * time.Second,
			BackoffMax:    5 * time.Minute,
			BackoffJitter: 3 * time.Second,
		},
		Tracker: TrackerConfig{
			TierSize:           5,
			TopInterval:        10 * time.Minute,
			MidInterval:        20 * time.Minute,
			BottomInterval:     30 * time.Minute,
			TopInitialDelay:    30 * time.Second,
			MidInitialDelay:    2 * time.Minute,
			BottomInitialDelay: 4 * time.Minute,
			WalletDelay:        200 * time.Millisecond,
			NightStartHour:     0,
			NightEndHour:       6,
			NightMultiplier:    2,
			HistoryLimit:       30,
			MonthlyQuota:       100_000,
		},
		Trades: TradesConfig{
			MaxStored:     500,
			FileName:      "trades.json",
			MaxSignatures: 1000,
			EvictFraction: 0.20,
			MinTradeUSD:   1.0,
		},
		Roster: RosterConfig{
			FileName: "kols.json",
		},
		Dexscreener: DexscreenerConfig{
			APIURL:   "https://api.dexscreener.com",
			CacheTTL: 5 * time.Minute,
			Timeout:  8 * time.Second,
		},
		Discord: DiscordConfig{},
		StatsServer: StatsServerConfig{
			Enabled: true,
			Port:    3001,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Helius: HeliusConfig{
			APIKey:        envString("HELIUS_API_KEY", ""),
			RPCKey:        envString("HELIUS_RPC_KEY", ""),
			APIURL:        envString("HELIUS_API_URL", "https://api.helius.xyz"),
			WSURL:         envString("HELIUS_WS_URL", "wss://mainnet.helius-rpc.com"),
			Enabled:       envBoolDefault("HELIUS_ENABLED", true),
			SolPrice:      envFloat("SOL_PRICE", 170.0),
			FetchTimeout:  envDuration("HELIUS_FETCH_TIMEOUT", 15*time.Second),
			PingInterval:  envDuration("HELIUS_PING_INTERVAL", 25*time.Second),
			BackoffBase:   envDuration("HELIUS_BACKOFF_BASE", 5*time.Second),
			BackoffMax:    envDuration("HELIUS_BACKOFF_MAX", 5*time.Minute),
			BackoffJitter: envDuration("HELIUS_BACKOFF_JITTER", 3*time.Second),
		},

		Tracker: TrackerConfig{
			TierSize:           envInt("TRACKER_TIER_SIZE", 5),
			TopInterval:        envDuration("TRACKER_TOP_INTERVAL", 10*time.Minute),
			MidInterval:        envDuration("TRACKER_MID_INTERVAL", 20*time.Minute),
			BottomInterval:     envDuration("TRACKER_BOTTOM_INTERVAL", 30*time.Minute),
			TopInitialDelay:    envDuration("TRACKER_TOP_INITIAL_DELAY", 30*time.Second),
			MidInitialDelay:    envDuration("TRACKER_MID_INITIAL_DELAY", 2*time.Minute),
			BottomInitialDelay: envDuration("TRACKER_BOTTOM_INITIAL_DELAY", 4*time.Minute),
			WalletDelay:        envDuration("TRACKER_WALLET_DELAY", 200*time.Millisecond),
			NightStartHour:     envInt("TRACKER_NIGHT_START_HOUR", 0),
			NightEndHour:       envInt("TRACKER_NIGHT_END_HOUR", 6),
			NightMultiplier:    envInt("TRACKER_NIGHT_MULTIPLIER", 2),
			HistoryLimit:       envInt("TRACKER_HISTORY_LIMIT", 30),
			MonthlyQuota:       envInt64("TRACKER_MONTHLY_QUOTA", 100_000),
		},

		Trades: TradesConfig{
			MaxStored:     envInt("TRADES_MAX_STORED", 500),
			FileName:      envString("TRADES_FILE_NAME", "trades.json"),
			MaxSignatures: envInt("TRADES_MAX_SIGNATURES", 1000),
			EvictFraction: envFloat("TRADES_EVICT_FRACTION", 0.20),
			MinTradeUSD:   envFloat("TRADES_MIN_TRADE_USD", 1.0),
		},

		Roster: RosterConfig{
			FileName: envString("ROSTER_FILE_NAME", "kols.json"),
		},

		Dexscreener: DexscreenerConfig{
			APIURL:   envString("DEXSCREENER_API_URL", "https://api.dexscreener.com"),
			CacheTTL: envDuration("DEXSCREENER_CACHE_TTL", 5*time.Minute),
			Timeout:  envDuration("DEXSCREENER_TIMEOUT", 8*time.Second),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
		},

		Gist: GistConfig{
			Token:  envString("GITHUB_TOKEN", ""),
			GistID: envString("DATA_GIST_ID", ""),
		},

		StatsServer: StatsServerConfig{
			Enabled: envBoolDefault("STATS_SERVER_ENABLED", true),
			Port:    envInt("PORT", 3001),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envInt64(key string, defaultVal int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
