package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidSubmission is a bid as received from a client
type BidSubmission struct {
	AuctionID    string
	ListingID    string
	BidderID     string
	Amount       decimal.Decimal
	Kind         BidKind
	ProxyCeiling *decimal.Decimal
}

// BidResult is the engine's answer to a bid submission
type BidResult struct {
	Accepted        bool             `json:"accepted"`
	Reason          string           `json:"reason,omitempty"`
	BidID           string           `json:"bid_id,omitempty"`
	NewCurrentPrice *decimal.Decimal `json:"new_current_price,omitempty"`
	NewBidCount     *int             `json:"new_bid_count,omitempty"`
	LeaderID        string           `json:"leader_id,omitempty"`
	MinimumBid      *decimal.Decimal `json:"minimum_bid,omitempty"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
}

// AuctionListing is the published listing an auction is opened from
type AuctionListing struct {
	ListingID       string
	OwnerID         string
	Currency        string
	StartingPrice   decimal.Decimal
	ReservePrice    *decimal.Decimal
	MinBidIncrement decimal.Decimal
	StartTime       time.Time
	EndTime         time.Time
	MaxExtensions   *int
}
