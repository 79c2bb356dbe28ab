package auctionclock

import (
	"sync"
	"time"

	"auction-engine/internal/models"

	"github.com/benbjohnson/clock"
)

// Scheduler keeps one timer per auction for its next clock transition.
// When a timer fires the callback receives the auction ID; the callback is
// expected to hand the work to the auction's sequencer, not do it inline.
type Scheduler struct {
	clk    clock.Clock
	window time.Duration
	fire   func(auctionID string)

	mu      sync.Mutex
	timers  map[string]*clock.Timer
	stopped bool
}

// NewScheduler creates a scheduler driven by clk
func NewScheduler(clk clock.Clock, window time.Duration, fire func(auctionID string)) *Scheduler {
	return &Scheduler{
		clk:    clk,
		window: window,
		fire:   fire,
		timers: make(map[string]*clock.Timer),
	}
}

// Schedule arms the timer for the next transition of a, replacing any
// pending one. Ended auctions are unscheduled.
func (s *Scheduler) Schedule(a models.Auction) {
	at, ok := NextTransition(a, s.clk.Now(), s.window)
	if !ok {
		s.Cancel(a.AuctionID)
		return
	}
	s.ScheduleAfter(a.AuctionID, at.Sub(s.clk.Now()))
}

// ScheduleAfter arms a timer firing after d
func (s *Scheduler) ScheduleAfter(auctionID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[auctionID]; ok {
		prev.Stop()
	}

	var t *clock.Timer
	t = s.clk.AfterFunc(d, func() {
		s.mu.Lock()
		current := s.timers[auctionID] == t
		if current {
			delete(s.timers, auctionID)
		}
		stopped := s.stopped
		s.mu.Unlock()

		if current && !stopped {
			s.fire(auctionID)
		}
	})
	s.timers[auctionID] = t
}

// Cancel drops the pending timer of an auction
func (s *Scheduler) Cancel(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[auctionID]; ok {
		t.Stop()
		delete(s.timers, auctionID)
	}
}

// Pending reports whether a timer is armed for the auction
func (s *Scheduler) Pending(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[auctionID]
	return ok
}

// Stop cancels every timer; later Schedule calls are ignored
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
