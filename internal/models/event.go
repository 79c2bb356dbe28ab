package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a real-time message sent to auction participants
type EventType string

const (
	EventBidPlaced       EventType = "bid_placed"
	EventAuctionExtended EventType = "auction_extended"
	EventAuctionEnded    EventType = "auction_ended"
	EventOutbid          EventType = "outbid"
	EventStatusChanged   EventType = "status_changed"
	EventSnapshot        EventType = "snapshot"
)

// Event is the envelope pushed to subscribers.
// Seq is the auction version the event was produced at.
type Event struct {
	Type      EventType `json:"type"`
	AuctionID string    `json:"auction_id"`
	Seq       int64     `json:"seq"`
	Data      any       `json:"data"`
}

type BidPlaced struct {
	AuctionID         string          `json:"auction_id"`
	Amount            decimal.Decimal `json:"amount"`
	BidderDisplayName string          `json:"bidder_display_name"`
	LeaderDisplayName string          `json:"leader_display_name"`
	NewCurrentPrice   decimal.Decimal `json:"new_current_price"`
	NewBidCount       int             `json:"new_bid_count"`
	NextMinBid        decimal.Decimal `json:"next_min_bid"`
	ReserveMet        bool            `json:"reserve_met"`
	Timestamp         time.Time       `json:"timestamp"`
}

type AuctionExtended struct {
	AuctionID        string    `json:"auction_id"`
	NewEndTime       time.Time `json:"new_end_time"`
	ExtensionMinutes float64   `json:"extension_minutes"`
	ExtensionCount   int       `json:"extension_count"`
	Reason           string    `json:"reason"`
}

type AuctionEnded struct {
	AuctionID  string          `json:"auction_id"`
	WinnerID   string          `json:"winner_id,omitempty"`
	WinningBid decimal.Decimal `json:"winning_bid"`
	TotalBids  int             `json:"total_bids"`
	ReserveMet bool            `json:"reserve_met"`
	EndReason  string          `json:"end_reason"`
}

// Outbid is delivered only to the bidder who lost the lead
type Outbid struct {
	AuctionID     string          `json:"auction_id"`
	PreviousBid   decimal.Decimal `json:"previous_bid"`
	NewHighestBid decimal.Decimal `json:"new_highest_bid"`
	TimeRemaining float64         `json:"time_remaining"`
}

type StatusChanged struct {
	AuctionID string        `json:"auction_id"`
	From      AuctionStatus `json:"from"`
	To        AuctionStatus `json:"to"`
	EndTime   time.Time     `json:"end_time"`
}
