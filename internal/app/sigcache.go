package app

import (
	"sync"

	"go.uber.org/zap"
)

// SignatureCache remembers recently processed transaction signatures so the
// same swap is never ingested twice. It is bounded and purely in-memory;
// losing it on restart only risks a few duplicate lookups, which the trade
// store dedups anyway.
type SignatureCache struct {
	logger        *zap.Logger
	maxSignatures int
	evictFraction float64

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string // Insertion order, oldest first
}

// NewSignatureCache creates a bounded signature cache.
func NewSignatureCache(logger *zap.Logger, maxSignatures int, evictFraction float64) *SignatureCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSignatures <= 0 {
		maxSignatures = 1000
	}
	if evictFraction <= 0 || evictFraction >= 1 {
		evictFraction = 0.20
	}

	return &SignatureCache{
		logger:        logger.Named("sigcache"),
		maxSignatures: maxSignatures,
		evictFraction: evictFraction,
		seen:          make(map[string]struct{}),
	}
}

// Seen reports whether a signature was already remembered.
func (c *SignatureCache) Seen(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.seen[signature]
	return ok
}

// Remember records a signature. Re-remembering is a no-op. When the cache
// exceeds its ceiling the oldest batch is evicted so eviction cost amortizes
// instead of firing on every insert.
func (c *SignatureCache) Remember(signature string) {
	if signature == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[signature]; ok {
		return
	}

	c.seen[signature] = struct{}{}
	c.order = append(c.order, signature)

	if len(c.seen) > c.maxSignatures {
		evict := int(float64(c.maxSignatures) * c.evictFraction)
		if evict < 1 {
			evict = 1
		}
		if evict > len(c.order) {
			evict = len(c.order)
		}

		for _, sig := range c.order[:evict] {
			delete(c.seen, sig)
		}
		c.order = append([]string(nil), c.order[evict:]...)

		c.logger.Debug("evicted old signatures",
			zap.Int("evicted", evict),
			zap.Int("remaining", len(c.seen)),
		)
	}
}

// Size returns the number of remembered signatures.
func (c *SignatureCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
