// Package proxy resolves competing bids against standing proxy ceilings
// using English-auction second-price rules.
//
// A bidder's capacity is the most they are committed to pay: a standing
// ceiling, a manual amount, or the current price for a leader without a
// ceiling. The entrant leads only when its capacity strictly exceeds the
// strongest opponent's; ties go to the bidder who was there first. The
// winner pays one increment over the loser's capacity, capped at its own,
// never its full ceiling.
package proxy

import (
	"time"

	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Standing is a bidder's registered proxy ceiling
type Standing struct {
	BidderID string
	Ceiling  decimal.Decimal
	PlacedAt time.Time
}

// State is the slice of auction state the resolver works on
type State struct {
	CurrentPrice decimal.Decimal
	Increment    decimal.Decimal
	LeaderID     string
	Ceilings     []Standing
}

// Entry is a validated bid entering resolution
type Entry struct {
	BidderID string
	Kind     models.BidKind
	Amount   decimal.Decimal
	Ceiling  decimal.Decimal
	PlacedAt time.Time
}

// AutoBid is a bid placed on behalf of a standing ceiling that defended the lead
type AutoBid struct {
	BidderID string
	Amount   decimal.Decimal
}

// Resolution is the outcome of one entry
type Resolution struct {
	Price            decimal.Decimal
	LeaderID         string
	PreviousLeaderID string
	EntrantLeads     bool
	// EntrantAmount is the amount recorded on the entrant's bid
	EntrantAmount decimal.Decimal
	AutoBid       *AutoBid
	Ceilings      []Standing
}

// LeaderChanged reports whether someone other than the previous leader now leads
func (r Resolution) LeaderChanged() bool {
	return r.LeaderID != r.PreviousLeaderID
}

type contender struct {
	bidderID   string
	capacity   decimal.Decimal
	placedAt   time.Time
	isLeader   bool
	hasCeiling bool
}

// stronger reports whether a beats b for the lead
func stronger(a, b contender) bool {
	if c := a.capacity.Cmp(b.capacity); c != 0 {
		return c > 0
	}
	if a.isLeader != b.isLeader {
		return a.isLeader
	}
	return a.placedAt.Before(b.placedAt)
}

// Resolve applies e to s. The caller must have validated e against s.
func Resolve(s State, e Entry) Resolution {
	res := Resolution{
		PreviousLeaderID: s.LeaderID,
		Ceilings:         mergeCeiling(s.Ceilings, e),
	}

	opponent, hasOpponent := strongestOpponent(s, e.BidderID)
	entrant := entrantCapacity(s, e)

	if !hasOpponent || entrant.Cmp(opponent.capacity) > 0 {
		res.EntrantLeads = true
		res.LeaderID = e.BidderID

		var rival decimal.Decimal
		if hasOpponent {
			rival = opponent.capacity
		}
		second := decimal.Min(rival.Add(s.Increment), entrant)

		if e.Kind == models.BidKindProxy {
			floor := s.CurrentPrice.Add(s.Increment)
			if s.LeaderID == e.BidderID {
				floor = s.CurrentPrice
			}
			res.Price = decimal.Max(floor, second)
			res.EntrantAmount = res.Price
		} else {
			res.Price = decimal.Max(e.Amount, second)
			res.EntrantAmount = e.Amount
		}
		return res
	}

	// a standing bidder keeps or takes the lead
	res.LeaderID = opponent.bidderID
	res.Price = decimal.Min(entrant.Add(s.Increment), opponent.capacity)
	res.EntrantAmount = entrant
	if e.Kind != models.BidKindProxy {
		res.EntrantAmount = e.Amount
	}
	if opponent.hasCeiling {
		res.AutoBid = &AutoBid{BidderID: opponent.bidderID, Amount: res.Price}
	}
	return res
}

// entrantCapacity is the most the entrant is committed to after this entry
func entrantCapacity(s State, e Entry) decimal.Decimal {
	if e.Kind == models.BidKindProxy {
		return e.Ceiling
	}
	capacity := e.Amount
	for _, c := range s.Ceilings {
		if c.BidderID == e.BidderID && c.Ceiling.GreaterThan(capacity) {
			capacity = c.Ceiling
		}
	}
	return capacity
}

// strongestOpponent finds the best contender other than bidderID
func strongestOpponent(s State, bidderID string) (contender, bool) {
	var best contender
	found := false

	consider := func(c contender) {
		if !found || stronger(c, best) {
			best = c
			found = true
		}
	}

	leaderCounted := false
	for _, st := range s.Ceilings {
		if st.BidderID == bidderID {
			continue
		}
		c := contender{bidderID: st.BidderID, capacity: st.Ceiling, placedAt: st.PlacedAt, hasCeiling: true}
		if st.BidderID == s.LeaderID {
			c.isLeader = true
			c.capacity = decimal.Max(st.Ceiling, s.CurrentPrice)
			leaderCounted = true
		}
		consider(c)
	}

	if s.LeaderID != "" && s.LeaderID != bidderID && !leaderCounted {
		consider(contender{
			bidderID: s.LeaderID,
			capacity: s.CurrentPrice,
			isLeader: true,
		})
	}

	return best, found
}

// mergeCeiling returns the standing set after e; a proxy entry replaces the
// bidder's previous ceiling.
func mergeCeiling(existing []Standing, e Entry) []Standing {
	out := make([]Standing, 0, len(existing)+1)
	for _, st := range existing {
		if e.Kind == models.BidKindProxy && st.BidderID == e.BidderID {
			continue
		}
		out = append(out, st)
	}
	if e.Kind == models.BidKindProxy {
		out = append(out, Standing{BidderID: e.BidderID, Ceiling: e.Ceiling, PlacedAt: e.PlacedAt})
	}
	return out
}
