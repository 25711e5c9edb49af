package app

import (
	"context"
	"sync"
	"time"

	"github.com/moneypay/ledger-service/internal/commission"
	"golang.org/x/sync/singleflight"
)

// ScheduleSource loads commission schedules from storage.
type ScheduleSource interface {
	GetCommissionSchedule(ctx context.Context, purpose commission.Purpose) (commission.Schedule, error)
}

type cachedSchedule struct {
	schedule  commission.Schedule
	expiresAt time.Time
}

// ScheduleCache keeps each purpose's schedule for ttl and coalesces
// concurrent loads. A ttl of zero disables caching.
type ScheduleCache struct {
	source ScheduleSource
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time

	mu      sync.RWMutex
	entries map[commission.Purpose]cachedSchedule

	// generation is bumped by Invalidate; a load that started under an older
	// generation is returned to its callers but never cached.
	generation map[commission.Purpose]uint64
}

func NewScheduleCache(source ScheduleSource, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{
		source:     source,
		ttl:        ttl,
		now:        time.Now,
		entries:    map[commission.Purpose]cachedSchedule{},
		generation: map[commission.Purpose]uint64{},
	}
}

// Get returns the schedule for purpose.
func (c *ScheduleCache) Get(ctx context.Context, purpose commission.Purpose) (commission.Schedule, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		entry, ok := c.entries[purpose]
		c.mu.RUnlock()
		if ok && c.now().Before(entry.expiresAt) {
			return entry.schedule, nil
		}
	}

	v, err, _ := c.group.Do(string(purpose), func() (interface{}, error) {
		c.mu.RLock()
		gen := c.generation[purpose]
		c.mu.RUnlock()

		schedule, err := c.source.GetCommissionSchedule(ctx, purpose)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			if c.generation[purpose] == gen {
				c.entries[purpose] = cachedSchedule{schedule: schedule, expiresAt: c.now().Add(c.ttl)}
			}
			c.mu.Unlock()
		}
		return schedule, nil
	})
	if err != nil {
		return commission.Schedule{}, err
	}
	return v.(commission.Schedule), nil
}

// Invalidate drops the cached schedule for purpose.
func (c *ScheduleCache) Invalidate(purpose commission.Purpose) {
	c.mu.Lock()
	delete(c.entries, purpose)
	c.generation[purpose]++
	c.mu.Unlock()
	c.group.Forget(string(purpose))
}
