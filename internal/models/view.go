package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionView is the public projection of an Auction.
// It carries no reserve price and no proxy ceilings.
type AuctionView struct {
	AuctionID       string          `json:"auction_id"`
	ListingID       string          `json:"listing_id"`
	Currency        string          `json:"currency"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	NextMinimumBid  decimal.Decimal `json:"next_min_bid"`
	MinBidIncrement decimal.Decimal `json:"min_bid_increment"`
	HasReserve      bool            `json:"has_reserve"`
	ReserveMet      bool            `json:"reserve_met"`
	BidCount        int             `json:"bid_count"`
	UniqueBidders   int             `json:"unique_bidders"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	ExtensionCount  int             `json:"extension_count"`
	MaxExtensions   int             `json:"max_extensions"`
	Status          AuctionStatus   `json:"status"`
	LeaderID        string          `json:"leader_id,omitempty"`
	WinnerID        string          `json:"winner_id,omitempty"`
	EndReason       string          `json:"end_reason,omitempty"`
	Version         int64           `json:"version"`
}

// View builds the public projection of a
func (a Auction) View() AuctionView {
	return AuctionView{
		AuctionID:       a.AuctionID,
		ListingID:       a.ListingID,
		Currency:        a.Currency,
		StartingPrice:   a.StartingPrice,
		CurrentPrice:    a.CurrentPrice,
		NextMinimumBid:  a.NextMinimumBid(),
		MinBidIncrement: a.MinBidIncrement,
		HasReserve:      a.ReservePrice != nil,
		ReserveMet:      a.IsReserveMet(),
		BidCount:        a.BidCount,
		UniqueBidders:   a.UniqueBidders,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		ExtensionCount:  a.ExtensionCount,
		MaxExtensions:   a.MaxExtensions,
		Status:          a.Status,
		LeaderID:        a.LeaderID,
		WinnerID:        a.WinnerID,
		EndReason:       a.EndReason,
		Version:         a.Version,
	}
}

// BidView is the public projection of a Bid with its derived outcome
type BidView struct {
	BidID             string          `json:"bid_id"`
	AuctionID         string          `json:"auction_id"`
	BidderID          string          `json:"bidder_id"`
	BidderDisplayName string          `json:"bidder_display_name"`
	Amount            decimal.Decimal `json:"amount"`
	Kind              BidKind         `json:"kind"`
	PlacedAt          time.Time       `json:"placed_at"`
	Status            BidStatus       `json:"status"`
}

// NewBidView projects b against the auction it belongs to
func NewBidView(b Bid, a Auction) BidView {
	return BidView{
		BidID:             b.BidID,
		AuctionID:         b.AuctionID,
		BidderID:          b.BidderID,
		BidderDisplayName: DisplayName(b.BidderID),
		Amount:            b.Amount,
		Kind:              b.Kind,
		PlacedAt:          b.PlacedAt,
		Status:            Outcome(b, a),
	}
}

// DisplayName masks a bidder identity for broadcast, e.g. "alice" -> "a***e"
func DisplayName(bidderID string) string {
	r := []rune(bidderID)
	switch len(r) {
	case 0:
		return ""
	case 1, 2:
		return string(r[0]) + "***"
	default:
		return string(r[0]) + "***" + string(r[len(r)-1])
	}
}
