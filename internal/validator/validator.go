package validator

import (
	"fmt"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places a bid amount may carry
const MoneyScale = 4

// MaxStorableAmount is the largest amount the record store can hold. It
// bounds every bid regardless of the configured rules.
var MaxStorableAmount = decimal.New(1, 16).Sub(decimal.New(1, -MoneyScale))

// Rules are the fraud-guard bounds applied to every bid.
// A zero value disables the corresponding bound.
type Rules struct {
	MaxBidAmount     decimal.Decimal
	MaxBidMultiplier decimal.Decimal
}

// Candidate is a bid submission reduced to what validation needs
type Candidate struct {
	BidderID string
	Kind     models.BidKind
	Amount   decimal.Decimal
	Ceiling  *decimal.Decimal
}

// Offer returns the amount the bidder is committing to: the ceiling for
// proxy bids, the amount otherwise.
func (c Candidate) Offer() decimal.Decimal {
	if c.Kind == models.BidKindProxy && c.Ceiling != nil {
		return *c.Ceiling
	}
	return c.Amount
}

// CheckShape rejects submissions that are malformed regardless of auction state
func CheckShape(c Candidate) error {
	if c.BidderID == "" {
		return fmt.Errorf("validator: %w - missing bidder", biddingerrors.ErrInvalidBid)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("validator: %w - unknown kind %q", biddingerrors.ErrInvalidBid, c.Kind)
	}
	if c.Kind == models.BidKindProxy {
		if c.Ceiling == nil || !c.Ceiling.IsPositive() {
			return fmt.Errorf("validator: %w - proxy bid without a positive ceiling", biddingerrors.ErrInvalidBid)
		}
		return checkScale(*c.Ceiling)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("validator: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	return checkScale(c.Amount)
}

func checkScale(v decimal.Decimal) error {
	if !v.Equal(v.Truncate(MoneyScale)) {
		return fmt.Errorf("validator: %w - more than %d decimal places", biddingerrors.ErrInvalidBid, MoneyScale)
	}
	return nil
}

// Validate runs the ordered business checks against the auction snapshot.
// status is the effective status at submission time, which may be ahead of
// the stored one when a clock transition has not been committed yet.
func Validate(c Candidate, a models.Auction, status models.AuctionStatus, rules Rules) error {
	if err := CheckShape(c); err != nil {
		return err
	}

	if !status.AcceptsBids() {
		return fmt.Errorf("validator: %w - status %s", biddingerrors.ErrAuctionClosed, status)
	}

	if c.BidderID == a.OwnerID {
		return fmt.Errorf("validator: %w", biddingerrors.ErrSelfBidForbidden)
	}

	offer := c.Offer()
	minimum := a.NextMinimumBid()
	if offer.LessThan(minimum) {
		return &biddingerrors.BidTooLowError{Amount: offer, Minimum: minimum}
	}

	if offer.GreaterThan(MaxStorableAmount) {
		return fmt.Errorf("validator: %w - above storable maximum", biddingerrors.ErrBidImplausible)
	}
	if !rules.MaxBidAmount.IsZero() && offer.GreaterThan(rules.MaxBidAmount) {
		return fmt.Errorf("validator: %w - above absolute cap", biddingerrors.ErrBidImplausible)
	}
	if !rules.MaxBidMultiplier.IsZero() && a.CurrentPrice.IsPositive() {
		limit := a.CurrentPrice.Mul(rules.MaxBidMultiplier)
		if offer.GreaterThan(limit) {
			return fmt.Errorf("validator: %w - more than %sx current price", biddingerrors.ErrBidImplausible, rules.MaxBidMultiplier)
		}
	}

	return nil
}
