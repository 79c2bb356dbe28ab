package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices go over the wire as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusUpcoming   AuctionStatus = "upcoming"
	StatusLive       AuctionStatus = "live"
	StatusEndingSoon AuctionStatus = "ending_soon"
	StatusExtended   AuctionStatus = "extended"
	StatusEnded      AuctionStatus = "ended"
)

// AcceptsBids reports whether bids may be placed in this status
func (s AuctionStatus) AcceptsBids() bool {
	return s == StatusLive || s == StatusEndingSoon || s == StatusExtended
}

// BidKind distinguishes explicit bids from resolver-driven ones
type BidKind string

const (
	BidKindManual    BidKind = "manual"
	BidKindProxy     BidKind = "proxy"
	BidKindEmergency BidKind = "emergency"
)

// Valid reports whether k is a known bid kind
func (k BidKind) Valid() bool {
	return k == BidKindManual || k == BidKindProxy || k == BidKindEmergency
}

// BidStatus is the outcome of a bid
type BidStatus string

const (
	BidLeading BidStatus = "leading"
	BidOutbid  BidStatus = "outbid"
	BidWon     BidStatus = "won"
	BidLost    BidStatus = "lost"
)

// End reasons recorded on finalization
const (
	EndReasonCompleted     = "completed"
	EndReasonReserveNotMet = "reserve_not_met"
	EndReasonNoBids        = "no_bids"
	EndReasonClosedByAdmin = "closed_by_admin"
)

// Auction is the durable record of one timed sale of one listing.
// ReservePrice never leaves the engine; use View for anything serialized.
type Auction struct {
	AuctionID       string           `json:"auction_id"`
	ListingID       string           `json:"listing_id"`
	OwnerID         string           `json:"owner_id"`
	Currency        string           `json:"currency"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	ReservePrice    *decimal.Decimal `json:"-"`
	MinBidIncrement decimal.Decimal  `json:"min_bid_increment"`
	BidCount        int              `json:"bid_count"`
	UniqueBidders   int              `json:"unique_bidders"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	ExtensionCount  int              `json:"extension_count"`
	MaxExtensions   int              `json:"max_extensions"`
	Status          AuctionStatus    `json:"status"`
	LeaderID        string           `json:"leader_id,omitempty"`
	LeadingBidID    string           `json:"leading_bid_id,omitempty"`
	WinnerID        string           `json:"winner_id,omitempty"`
	ReserveMet      bool             `json:"reserve_met"`
	EndReason       string           `json:"end_reason,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NextMinimumBid is the lowest amount a new bid must reach
func (a Auction) NextMinimumBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinBidIncrement)
}

// IsReserveMet reports whether the current price satisfies the hidden reserve
func (a Auction) IsReserveMet() bool {
	return a.ReservePrice == nil || a.CurrentPrice.GreaterThanOrEqual(*a.ReservePrice)
}

// Bid is an immutable record of one submitted amount.
// Status is the outcome at placement time; see Outcome for the current one.
type Bid struct {
	BidID        string           `json:"bid_id"`
	AuctionID    string           `json:"auction_id"`
	BidderID     string           `json:"bidder_id"`
	Amount       decimal.Decimal  `json:"amount"`
	Kind         BidKind          `json:"kind"`
	ProxyCeiling *decimal.Decimal `json:"-"`
	PlacedAt     time.Time        `json:"placed_at"`
	Status       BidStatus        `json:"status"`
}

// ProxyCeiling is a bidder's standing authorization for automatic bids.
// At most one exists per bidder and auction.
type ProxyCeiling struct {
	AuctionID string          `json:"-"`
	BidderID  string          `json:"-"`
	Ceiling   decimal.Decimal `json:"-"`
	PlacedAt  time.Time       `json:"-"`
}

// Outcome derives the current status of a bid from the auction state
func Outcome(b Bid, a Auction) BidStatus {
	leading := a.LeadingBidID != "" && b.BidID == a.LeadingBidID
	if a.Status == StatusEnded {
		if leading && a.ReserveMet {
			return BidWon
		}
		return BidLost
	}
	if leading {
		return BidLeading
	}
	return BidOutbid
}
