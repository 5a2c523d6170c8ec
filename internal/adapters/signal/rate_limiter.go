package signal

import (
	"sync"
	"time"

	"github.com/dkeye/matchbox-server/internal/domain"
)

// PeerRateLimiter is a sliding window limiter over signals sent by a peer.
// A non-positive limit disables it.
type PeerRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PeerID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewPeerRateLimiter(limit int, interval time.Duration) *PeerRateLimiter {
	return &PeerRateLimiter{
		history:  make(map[domain.PeerID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *PeerRateLimiter) Allow(peer domain.PeerID) bool {
	if rl.limit <= 0 || rl.interval <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[peer]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[peer] = fresh
		return false
	}

	rl.history[peer] = append(fresh, now)
	return true
}

// Forget drops the history of a peer that disconnected.
func (rl *PeerRateLimiter) Forget(peer domain.PeerID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, peer)
}
