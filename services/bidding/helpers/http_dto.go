package helpers

import (
	"time"

	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionID    string           `json:"auction_id" binding:"required"`
	ListingID    string           `json:"listing_id"`
	BidderID     string           `json:"bidder_id" binding:"required"`
	Amount       decimal.Decimal  `json:"amount"`
	Kind         string           `json:"kind" binding:"omitempty,oneof=manual proxy emergency"`
	ProxyCeiling *decimal.Decimal `json:"proxy_ceiling,omitempty"`
}

// Submission converts the request into the engine's input; kind defaults to manual
func (r PlaceBidRequest) Submission() model.BidSubmission {
	kind := model.BidKind(r.Kind)
	if kind == "" {
		kind = model.BidKindManual
	}
	return model.BidSubmission{
		AuctionID:    r.AuctionID,
		ListingID:    r.ListingID,
		BidderID:     r.BidderID,
		Amount:       r.Amount,
		Kind:         kind,
		ProxyCeiling: r.ProxyCeiling,
	}
}

type OpenAuctionRequest struct {
	ListingID       string           `json:"listing_id" binding:"required"`
	OwnerID         string           `json:"owner_id" binding:"required"`
	Currency        string           `json:"currency" binding:"required,len=3"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	MinBidIncrement decimal.Decimal  `json:"min_bid_increment"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	EndTime         time.Time        `json:"end_time"`
	MaxExtensions   *int             `json:"max_extensions,omitempty"`
}

// Listing converts the request into the listing an auction is opened from
func (r OpenAuctionRequest) Listing() model.AuctionListing {
	l := model.AuctionListing{
		ListingID:       r.ListingID,
		OwnerID:         r.OwnerID,
		Currency:        r.Currency,
		StartingPrice:   r.StartingPrice,
		ReservePrice:    r.ReservePrice,
		MinBidIncrement: r.MinBidIncrement,
		EndTime:         r.EndTime,
		MaxExtensions:   r.MaxExtensions,
	}
	if r.StartTime != nil {
		l.StartTime = *r.StartTime
	}
	return l
}
