package cache

import (
	"context"
	"sync"
	"time"

	"deleonpos/backend/internal/reconcile"
)

// SummaryCache stores computed cash summaries per tenant, day and register.
// Invalidate drops every register of the day at once and bumps the day's
// generation. Set only stores a summary computed under the current generation,
// so a computation that straddles an invalidation is discarded.
type SummaryCache interface {
	Get(ctx context.Context, tenantID, dateKey, registerID string) (*reconcile.Summary, bool, error)
	Generation(ctx context.Context, tenantID, dateKey string) (int64, error)
	Set(ctx context.Context, summary reconcile.Summary, generation int64, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID, dateKey string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _, _, _ string) (*reconcile.Summary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Generation(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ reconcile.Summary, _ int64, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _, _ string) error {
	return nil
}

type memoryEntry struct {
	summary   reconcile.Summary
	expiresAt time.Time
}

// MemorySummaryCache is the single-node cache used when redis is not configured.
type MemorySummaryCache struct {
	mu          sync.Mutex
	days        map[string]map[string]memoryEntry
	generations map[string]int64
	now         func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{
		days:        make(map[string]map[string]memoryEntry),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

func (c *MemorySummaryCache) Get(_ context.Context, tenantID, dateKey, registerID string) (*reconcile.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.days[dayKey(tenantID, dateKey)][registerID]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	summary := entry.summary
	return &summary, true, nil
}

func (c *MemorySummaryCache) Generation(_ context.Context, tenantID, dateKey string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[dayKey(tenantID, dateKey)], nil
}

func (c *MemorySummaryCache) Set(_ context.Context, summary reconcile.Summary, generation int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := dayKey(summary.TenantID, summary.DateKey)
	if c.generations[key] != generation {
		return nil
	}
	day, ok := c.days[key]
	if !ok {
		day = make(map[string]memoryEntry)
		c.days[key] = day
	}
	day[summary.RegisterID] = memoryEntry{summary: summary, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemorySummaryCache) Invalidate(_ context.Context, tenantID, dateKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := dayKey(tenantID, dateKey)
	delete(c.days, key)
	c.generations[key]++
	return nil
}

func dayKey(tenantID, dateKey string) string {
	return "deleonpos:summary:" + tenantID + ":" + dateKey
}

func generationKey(tenantID, dateKey string) string {
	return "deleonpos:summary-gen:" + tenantID + ":" + dateKey
}
