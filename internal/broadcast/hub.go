package broadcast

import (
	"encoding/json"
	"sync"

	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/utils"
)

// Hub keeps per-auction subscriber groups and fans events out to them.
// Events for one auction must be published from one goroutine at a time
// (the auction's sequencer); each subscriber then sees them in that order.
type Hub struct {
	mu          sync.RWMutex
	groups      map[string]map[*Subscriber]struct{}
	memberships map[*Subscriber]map[string]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		groups:      make(map[string]map[*Subscriber]struct{}),
		memberships: make(map[*Subscriber]map[string]struct{}),
	}
}

// Join adds sub to the auction's group. It reports false if sub was already a member.
func (h *Hub) Join(auctionID string, sub *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[auctionID]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.groups[auctionID] = group
	}
	if _, member := group[sub]; member {
		return false
	}
	group[sub] = struct{}{}

	if h.memberships[sub] == nil {
		h.memberships[sub] = make(map[string]struct{})
	}
	h.memberships[sub][auctionID] = struct{}{}
	return true
}

// Leave removes sub from the auction's group. It reports false if sub was not a member.
func (h *Hub) Leave(auctionID string, sub *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(auctionID, sub)
}

func (h *Hub) leaveLocked(auctionID string, sub *Subscriber) bool {
	group, ok := h.groups[auctionID]
	if !ok {
		return false
	}
	if _, member := group[sub]; !member {
		return false
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.groups, auctionID)
	}
	if m := h.memberships[sub]; m != nil {
		delete(m, auctionID)
		if len(m) == 0 {
			delete(h.memberships, sub)
		}
	}
	return true
}

// LeaveAll drops every membership of sub, e.g. on disconnect
func (h *Hub) LeaveAll(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for auctionID := range h.memberships[sub] {
		h.leaveLocked(auctionID, sub)
	}
}

// Members returns the number of subscribers joined to an auction
func (h *Hub) Members(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[auctionID])
}

// Publish delivers ev to every member of its auction group
func (h *Hub) Publish(ev models.Event) int {
	return h.fanOut(ev, func(*Subscriber) bool { return true })
}

// PublishTo delivers ev only to members of its auction group logged in as userID
func (h *Hub) PublishTo(userID string, ev models.Event) int {
	return h.fanOut(ev, func(s *Subscriber) bool { return s.userID == userID })
}

// Send delivers ev to a single subscriber regardless of membership
func (h *Hub) Send(sub *Subscriber, ev models.Event) bool {
	msg, err := json.Marshal(ev)
	if err != nil {
		utils.Error("broadcast: failed to encode event", map[string]any{"type": ev.Type, "error": err.Error()})
		return false
	}
	if !sub.deliver(msg) {
		h.drop(sub)
		return false
	}
	metrics.BroadcastDelivered.WithLabelValues(string(ev.Type)).Inc()
	return true
}

func (h *Hub) fanOut(ev models.Event, match func(*Subscriber) bool) int {
	msg, err := json.Marshal(ev)
	if err != nil {
		utils.Error("broadcast: failed to encode event", map[string]any{"type": ev.Type, "error": err.Error()})
		return 0
	}

	var slow []*Subscriber
	delivered := 0

	h.mu.RLock()
	for sub := range h.groups[ev.AuctionID] {
		if !match(sub) {
			continue
		}
		if sub.deliver(msg) {
			delivered++
		} else {
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.drop(sub)
	}
	metrics.BroadcastDelivered.WithLabelValues(string(ev.Type)).Add(float64(delivered))
	return delivered
}

// drop disconnects a subscriber that cannot keep up; it must re-join and
// will get a fresh snapshot rather than the events it missed
func (h *Hub) drop(sub *Subscriber) {
	h.LeaveAll(sub)
	if sub.Closed() {
		return
	}
	sub.Close()
	metrics.BroadcastDropped.Inc()
	utils.Warn("broadcast: dropped slow subscriber", map[string]any{
		"subscriber_id": sub.id,
		"user_id":       sub.userID,
	})
}
