package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not bid on any auction")
	ErrVersionConflict = errors.New("auction record changed concurrently")
)

// business logic errors
var (
	ErrInvalidBid       = errors.New("invalid bid")
	ErrInvalidAuction   = errors.New("invalid auction")
	ErrAuctionClosed    = errors.New("auction is not open for bidding")
	ErrSelfBidForbidden = errors.New("listing owner cannot bid")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrBidImplausible   = errors.New("bid amount implausible")
)

// sequencing errors
var (
	ErrBackpressure     = errors.New("auction busy, retry later")
	ErrSequencerStopped = errors.New("sequencer stopped")
)

// BidTooLowError reports the minimum a rejected bid must reach
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: %s is below the minimum of %s", ErrBidTooLow, e.Amount, e.Minimum)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// Reason returns the machine-readable rejection reason for err
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrSelfBidForbidden):
		return "self_bid_forbidden"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrBidImplausible):
		return "bid_implausible"
	case errors.Is(err, ErrBackpressure), errors.Is(err, ErrVersionConflict):
		return "backpressure"
	case errors.Is(err, ErrInvalidBid):
		return "invalid_bid"
	case errors.Is(err, ErrAuctionNotFound):
		return "auction_not_found"
	default:
		return "internal_error"
	}
}

// Retryable reports whether the same submission may succeed later
func Retryable(err error) bool {
	return errors.Is(err, ErrBidTooLow) || errors.Is(err, ErrBackpressure) || errors.Is(err, ErrVersionConflict)
}
