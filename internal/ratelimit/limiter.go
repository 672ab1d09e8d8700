// Package ratelimit implements per-key sliding-window admission.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Limiter admits at most a fixed number of events per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const shardCount = 16

type shard struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// SlidingWindow is a process-local Limiter. Keys are spread over shards so
// unrelated keys rarely contend. Rejected events are not recorded, so a
// flooding client is readmitted as soon as its oldest admitted hit ages out.
type SlidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time
	shards [shardCount]shard
}

func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	return NewSlidingWindowWithClock(max, window, time.Now)
}

func NewSlidingWindowWithClock(max int, window time.Duration, now func() time.Time) *SlidingWindow {
	sw := &SlidingWindow{max: max, window: window, now: now}
	for i := range sw.shards {
		sw.shards[i].hits = make(map[string][]time.Time)
	}
	return sw
}

func (sw *SlidingWindow) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &sw.shards[h.Sum32()%shardCount]
}

func (sw *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	now := sw.now()
	s := sw.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := prune(s.hits[key], now.Add(-sw.window))
	if len(fresh) >= sw.max {
		s.hits[key] = fresh
		return false, nil
	}
	s.hits[key] = append(fresh, now)
	return true, nil
}

// prune drops hits at or before cutoff. hits are in arrival order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// Sweep forgets keys whose hits have all expired and returns how many were
// dropped.
func (sw *SlidingWindow) Sweep() int {
	cutoff := sw.now().Add(-sw.window)
	dropped := 0
	for i := range sw.shards {
		s := &sw.shards[i]
		s.mu.Lock()
		for k, hits := range s.hits {
			if len(prune(hits, cutoff)) == 0 {
				delete(s.hits, k)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (sw *SlidingWindow) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sw.Sweep()
		}
	}
}
