package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QuotaTracker counts outbound API requests per local day and projects
// monthly usage against the provider's free-tier ceiling. It is purely
// advisory: nothing here ever blocks a request.
type QuotaTracker struct {
	logger       *zap.Logger
	monthlyQuota int64

	mu            sync.Mutex
	requestsToday int64
	totalRequests int64
	resetAt       time.Time
}

// QuotaStats is a snapshot of request accounting.
type QuotaStats struct {
	RequestsToday      int64   `json:"requests_today"`
	TotalRequests      int64   `json:"total_requests"`
	EstimatedMonthly   int64   `json:"estimated_monthly_requests"`
	MonthlyQuota       int64   `json:"monthly_quota"`
	FreePlanUsagePct   float64 `json:"free_plan_usage_pct"`
	NextResetAt        string  `json:"next_reset_at"`
	OverQuotaProjected bool    `json:"over_quota_projected"`
}

// NewQuotaTracker creates a tracker with the given monthly ceiling.
func NewQuotaTracker(logger *zap.Logger, monthlyQuota int64) *QuotaTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if monthlyQuota <= 0 {
		monthlyQuota = 100_000
	}

	return &QuotaTracker{
		logger:       logger.Named("quota"),
		monthlyQuota: monthlyQuota,
		resetAt:      nextMidnight(time.Now()),
	}
}

// Record counts n requests against today's tally.
func (q *QuotaTracker) Record(n int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(time.Now())
	q.requestsToday += n
	q.totalRequests += n
}

// Stats returns a snapshot of current usage.
func (q *QuotaTracker) Stats() QuotaStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rolloverLocked(time.Now())

	estimated := q.requestsToday * 30
	pct := float64(estimated) / float64(q.monthlyQuota) * 100

	return QuotaStats{
		RequestsToday:      q.requestsToday,
		TotalRequests:      q.totalRequests,
		EstimatedMonthly:   estimated,
		MonthlyQuota:       q.monthlyQuota,
		FreePlanUsagePct:   pct,
		NextResetAt:        q.resetAt.Format(time.RFC3339),
		OverQuotaProjected: estimated > q.monthlyQuota,
	}
}

// rolloverLocked zeroes the daily counter once local midnight passes.
func (q *QuotaTracker) rolloverLocked(now time.Time) {
	if now.Before(q.resetAt) {
		return
	}

	q.logger.Info("daily request counter reset",
		zap.Int64("requests", q.requestsToday),
	)
	q.requestsToday = 0
	q.resetAt = nextMidnight(now)
}

// Run logs a usage summary periodically until the context ends. The reset
// itself happens lazily on Record/Stats, so this loop is observability only.
func (q *QuotaTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := q.Stats()
			q.logger.Info("api usage",
				zap.Int64("requestsToday", stats.RequestsToday),
				zap.Int64("estimatedMonthly", stats.EstimatedMonthly),
				zap.Float64("freePlanPct", stats.FreePlanUsagePct),
			)
			if stats.OverQuotaProjected {
				q.logger.Warn("projected monthly usage exceeds free plan",
					zap.Int64("estimatedMonthly", stats.EstimatedMonthly),
					zap.Int64("monthlyQuota", stats.MonthlyQuota),
				)
			}
		}
	}
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}
