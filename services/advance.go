package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler arms the delayed transition to the next round after a round
// resolves. Any observer of a resolution may try to schedule it; the
// (room, phase, round) key guarantees at most one timer per round in this
// process, and the transactional state guard inside the callback keeps the
// transition idempotent across processes and redundant callers.
type Scheduler struct {
	mu    sync.Mutex
	armed map[string]bool

	// afterFunc is swapped out in tests to fire synchronously.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		armed:     make(map[string]bool),
		afterFunc: time.AfterFunc,
	}
}

// Once arms fn after delay, at most once per key. It reports whether the
// timer was armed by this call.
func (s *Scheduler) Once(code, phase string, round int, delay time.Duration, fn func()) bool {
	key := fmt.Sprintf("%s/%s/%d", code, phase, round)

	s.mu.Lock()
	if s.armed[key] {
		s.mu.Unlock()
		return false
	}
	s.armed[key] = true
	s.mu.Unlock()

	log.Debug().Str("room", code).Str("phase", phase).Int("round", round).Dur("delay", delay).Msg("advance scheduled")
	s.afterFunc(delay, func() {
		fn()
		s.mu.Lock()
		delete(s.armed, key)
		s.mu.Unlock()
	})
	return true
}
