package validator

import (
	"errors"
	"testing"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr(v int64) *decimal.Decimal {
	x := decimal.NewFromInt(v)
	return &x
}

func dec(s string) *decimal.Decimal {
	x := decimal.RequireFromString(s)
	return &x
}

func liveAuction() models.Auction {
	return models.Auction{
		AuctionID:       "auction1",
		OwnerID:         "owner1",
		StartingPrice:   d(40000),
		CurrentPrice:    d(50000),
		MinBidIncrement: d(1000),
		Status:          models.StatusLive,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	rules := Rules{MaxBidAmount: d(10_000_000), MaxBidMultiplier: d(10)}

	tests := []struct {
		name        string
		candidate   Candidate
		status      models.AuctionStatus
		expectedErr error
	}{
		{
			name:      "manual_at_minimum",
			candidate: Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(51000)},
			status:    models.StatusLive,
		},
		{
			name:        "manual_below_increment",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.NewFromFloat(50500)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "emergency_validated_like_manual",
			candidate: Candidate{BidderID: "userA", Kind: models.BidKindEmergency, Amount: d(60000)},
			status:    models.StatusEndingSoon,
		},
		{
			name:      "proxy_ceiling_above_minimum",
			candidate: Candidate{BidderID: "userA", Kind: models.BidKindProxy, Ceiling: ptr(70000)},
			status:    models.StatusExtended,
		},
		{
			name:        "proxy_ceiling_too_low",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindProxy, Amount: d(90000), Ceiling: ptr(50900)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrBidTooLow,
		},
		{
			name:        "proxy_without_ceiling",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindProxy, Amount: d(60000)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:        "auction_ended",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(60000)},
			status:      models.StatusEnded,
			expectedErr: biddingerrors.ErrAuctionClosed,
		},
		{
			name:        "auction_upcoming",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(60000)},
			status:      models.StatusUpcoming,
			expectedErr: biddingerrors.ErrAuctionClosed,
		},
		{
			name:        "owner_bidding",
			candidate:   Candidate{BidderID: "owner1", Kind: models.BidKindManual, Amount: d(60000)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrSelfBidForbidden,
		},
		{
			name:        "closed_checked_before_owner",
			candidate:   Candidate{BidderID: "owner1", Kind: models.BidKindManual, Amount: d(1)},
			status:      models.StatusEnded,
			expectedErr: biddingerrors.ErrAuctionClosed,
		},
		{
			name:        "owner_checked_before_amount",
			candidate:   Candidate{BidderID: "owner1", Kind: models.BidKindManual, Amount: d(1)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrSelfBidForbidden,
		},
		{
			name:        "above_multiplier",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(500001)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrBidImplausible,
		},
		{
			name:        "proxy_above_absolute_cap",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindProxy, Ceiling: ptr(20_000_000)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrBidImplausible,
		},
		{
			name:        "missing_bidder",
			candidate:   Candidate{Kind: models.BidKindManual, Amount: d(60000)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:        "unknown_kind",
			candidate:   Candidate{BidderID: "userA", Kind: "sealed", Amount: d(60000)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:        "negative_amount",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(-5)},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "four_decimal_places",
			candidate: Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.RequireFromString("51000.1234")},
			status:    models.StatusLive,
		},
		{
			name:      "trailing_zeros_beyond_scale",
			candidate: Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.RequireFromString("51000.123400")},
			status:    models.StatusLive,
		},
		{
			name:        "amount_finer_than_scale",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.RequireFromString("51000.00001")},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:        "ceiling_finer_than_scale",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindProxy, Ceiling: dec("60000.12345")},
			status:      models.StatusLive,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
		{
			name:        "scale_checked_before_status",
			candidate:   Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.RequireFromString("0.00001")},
			status:      models.StatusEnded,
			expectedErr: biddingerrors.ErrInvalidBid,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.candidate, liveAuction(), tc.status, rules)
			if tc.expectedErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.expectedErr), "expected error: %v, got: %v", tc.expectedErr, err)
		})
	}
}

func TestValidate_TooLowCarriesMinimum(t *testing.T) {
	t.Parallel()

	err := Validate(
		Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(50500)},
		liveAuction(), models.StatusLive, Rules{},
	)

	var tooLow *biddingerrors.BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	require.True(t, tooLow.Minimum.Equal(d(51000)))
}

func TestValidate_ZeroRulesDisableFraudGuard(t *testing.T) {
	t.Parallel()

	err := Validate(
		Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: d(1_000_000_000)},
		liveAuction(), models.StatusLive, Rules{},
	)
	require.NoError(t, err)
}

func TestValidate_StorableMaximumAlwaysApplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate Candidate
		wantErr   bool
	}{
		{name: "at_maximum", candidate: Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: MaxStorableAmount}},
		{name: "manual_above", candidate: Candidate{BidderID: "userA", Kind: models.BidKindManual, Amount: decimal.New(1, 16)}, wantErr: true},
		{name: "proxy_above", candidate: Candidate{BidderID: "userA", Kind: models.BidKindProxy, Ceiling: dec("999999999999999999")}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.candidate, liveAuction(), models.StatusLive, Rules{})
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, biddingerrors.ErrBidImplausible)
		})
	}
}
