package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Helper to create a new live Auction
func newAuction(auctionID string, startingPrice int64, end time.Time) model.Auction {
	return model.Auction{
		AuctionID:       auctionID,
		ListingID:       "listing-" + auctionID,
		OwnerID:         "owner",
		Currency:        "USD",
		StartingPrice:   decimal.NewFromInt(startingPrice),
		CurrentPrice:    decimal.NewFromInt(startingPrice),
		MinBidIncrement: decimal.NewFromInt(500),
		StartTime:       base,
		EndTime:         end,
		MaxExtensions:   10,
		Status:          model.StatusLive,
		CreatedAt:       base,
		UpdatedAt:       base,
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, bidderID string, amount int64, placedAt time.Time) model.Bid {
	return model.Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		Kind:      model.BidKindManual,
		PlacedAt:  placedAt,
		Status:    model.BidLeading,
	}
}

// commitBid applies b on top of the stored auction state
func commitBid(t *testing.T, repo *MemoryRepo, b model.Bid) error {
	t.Helper()

	a, err := repo.GetAuction(context.Background(), b.AuctionID)
	if err != nil {
		return err
	}
	next := a
	next.CurrentPrice = b.Amount
	next.BidCount++
	next.LeaderID = b.BidderID
	next.LeadingBidID = b.BidID
	next.Version = a.Version + 1
	return repo.CommitBid(context.Background(), BidCommit{Auction: next, ExpectedVersion: a.Version, Bids: []model.Bid{b}})
}

// Test CreateAuction and GetAuction
func TestMemoryRepo_CreateAuction(t *testing.T) {
	t.Parallel() // Allow running in parallel with other test functions

	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 1000, base.Add(time.Hour))))

	tests := []struct {
		name    string
		auction model.Auction
		wantErr error
	}{
		{name: "new_auction", auction: newAuction("auction2", 50, base.Add(time.Hour))},
		{name: "duplicate_auction", auction: newAuction("auction1", 50, base.Add(time.Hour)), wantErr: biddingerrors.ErrAuctionExists},
		{name: "empty_auctionID", auction: newAuction("", 50, base.Add(time.Hour)), wantErr: biddingerrors.ErrInvalidAuction},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run table test cases in parallel

			err := repo.CreateAuction(ctx, tc.auction)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := repo.GetAuction(ctx, tc.auction.AuctionID)
			require.NoError(t, err)
			require.Equal(t, tc.auction, got)
		})
	}

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()

		_, err := repo.GetAuction(ctx, "auctionX")
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	})
}

// Test CommitBid
func TestMemoryRepo_CommitBid(t *testing.T) {
	t.Parallel() // Allow running in parallel with other test functions

	ctx := context.Background()

	t.Run("applies_auction_bids_and_ceiling", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 1000, base.Add(time.Hour))))

		a, err := repo.GetAuction(ctx, "auction1")
		require.NoError(t, err)

		ceiling := decimal.NewFromInt(5000)
		proxyBid := newBid("bid1", "auction1", "userA", 1500, base)
		proxyBid.Kind = model.BidKindProxy
		proxyBid.ProxyCeiling = &ceiling

		next := a
		next.CurrentPrice = proxyBid.Amount
		next.BidCount = 1
		next.UniqueBidders = 1
		next.LeaderID = "userA"
		next.LeadingBidID = "bid1"
		next.Version = 1

		require.NoError(t, repo.CommitBid(ctx, BidCommit{
			Auction:         next,
			ExpectedVersion: 0,
			Bids:            []model.Bid{proxyBid},
			Ceiling:         &model.ProxyCeiling{AuctionID: "auction1", BidderID: "userA", Ceiling: ceiling, PlacedAt: base},
		}))

		got, err := repo.GetAuction(ctx, "auction1")
		require.NoError(t, err)
		require.Equal(t, next, got)

		bids, err := repo.GetBids(ctx, "auction1")
		require.NoError(t, err)
		require.Equal(t, []model.Bid{proxyBid}, bids)

		ceilings, err := repo.GetProxyCeilings(ctx, "auction1")
		require.NoError(t, err)
		require.Len(t, ceilings, 1)
		require.True(t, ceilings[0].Ceiling.Equal(ceiling))

		auctions, err := repo.GetAuctionsByBidder(ctx, "userA")
		require.NoError(t, err)
		require.Equal(t, []model.Auction{next}, auctions)
	})

	t.Run("stale_version_is_rejected_without_side_effects", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 1000, base.Add(time.Hour))))
		require.NoError(t, commitBid(t, repo, newBid("bid1", "auction1", "userA", 1500, base)))

		a, err := repo.GetAuction(ctx, "auction1")
		require.NoError(t, err)

		stale := a
		stale.Version = 1
		err = repo.CommitBid(ctx, BidCommit{
			Auction:         stale,
			ExpectedVersion: 0,
			Bids:            []model.Bid{newBid("bid2", "auction1", "userB", 2000, base)},
		})
		require.ErrorIs(t, err, biddingerrors.ErrVersionConflict)

		bids, err := repo.GetBids(ctx, "auction1")
		require.NoError(t, err)
		require.Len(t, bids, 1)

		_, err = repo.GetAuctionsByBidder(ctx, "userB")
		require.ErrorIs(t, err, biddingerrors.ErrUserNoBids)
	})

	t.Run("proxy_ceiling_is_replaced_not_duplicated", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 1000, base.Add(time.Hour))))

		for i, amount := range []int64{3000, 8000} {
			a, err := repo.GetAuction(ctx, "auction1")
			require.NoError(t, err)
			next := a
			next.Version++
			require.NoError(t, repo.CommitBid(ctx, BidCommit{
				Auction:         next,
				ExpectedVersion: a.Version,
				Ceiling: &model.ProxyCeiling{
					AuctionID: "auction1",
					BidderID:  "userA",
					Ceiling:   decimal.NewFromInt(amount),
					PlacedAt:  base.Add(time.Duration(i) * time.Minute),
				},
			}))
		}

		ceilings, err := repo.GetProxyCeilings(ctx, "auction1")
		require.NoError(t, err)
		require.Len(t, ceilings, 1)
		require.True(t, ceilings[0].Ceiling.Equal(decimal.NewFromInt(8000)))
	})

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		err := repo.CommitBid(ctx, BidCommit{Auction: newAuction("auctionX", 10, base)})
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	})

	// concurrency test: only one writer per version may win
	t.Run("concurrent_commits_same_version", func(t *testing.T) {
		t.Parallel() // Run concurrency test in parallel

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 1000, base.Add(time.Hour))))
		a, err := repo.GetAuction(ctx, "auction1")
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		concurrentCount := 50

		for i := 0; i < concurrentCount; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				next := a
				next.Version = a.Version + 1
				err := repo.CommitBid(ctx, BidCommit{
					Auction:         next,
					ExpectedVersion: a.Version,
					Bids:            []model.Bid{newBid(fmt.Sprintf("bid-%d", i), "auction1", fmt.Sprintf("user-%d", i), int64(1500+i), base)},
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, biddingerrors.ErrVersionConflict):
					conflicts++
				}
			}()
		}

		wg.Wait()

		require.Equal(t, 1, succeeded)
		require.Equal(t, concurrentCount-1, conflicts)

		bids, err := repo.GetBids(ctx, "auction1")
		require.NoError(t, err)
		require.Len(t, bids, 1)
	})
}

// Test GetBids
func TestMemoryRepo_GetBids(t *testing.T) {
	t.Parallel() // Allow running in parallel with other test functions

	ctx := context.Background()

	// Initialize repo and seed with 3 auctions
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 50, base.Add(time.Hour))))
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction2", 75, base.Add(time.Hour))))
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction3", 100, base.Add(time.Hour)))) // for large number of bids

	bid1 := newBid("bid1", "auction1", "user1", 100, base)
	bid2 := newBid("bid2", "auction1", "user2", 150, base.Add(time.Second))
	require.NoError(t, commitBid(t, repo, bid1))
	require.NoError(t, commitBid(t, repo, bid2))

	// Seed large number of bids for internal slice growth
	var largeBids []model.Bid
	for i := 0; i < 1000; i++ {
		b := newBid(fmt.Sprintf("bid-large-%d", i), "auction3", fmt.Sprintf("user-%d", i), int64(100+i), base)
		require.NoError(t, commitBid(t, repo, b))
		largeBids = append(largeBids, b)
	}

	// Table-driven test cases
	tests := []struct {
		name     string
		id       string
		wantBids []model.Bid
		wantErr  error
	}{
		{name: "existing_auction_with_bids", id: "auction1", wantBids: []model.Bid{bid1, bid2}},
		{name: "existing_auction_no_bids", id: "auction2", wantErr: biddingerrors.ErrNoBids},
		{name: "non_existing_auction", id: "auctionX", wantErr: biddingerrors.ErrAuctionNotFound},
		{name: "auction_with_large_number_of_bids", id: "auction3", wantBids: largeBids},
		{name: "empty_auctionID", id: "", wantErr: biddingerrors.ErrAuctionNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run table test cases in parallel

			bids, err := repo.GetBids(ctx, tc.id)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			// placement order is part of the contract
			require.Equal(t, tc.wantBids, bids)
		})
	}

	// Concurrent read test
	t.Run("concurrent_reads", func(t *testing.T) {
		t.Parallel() // Run concurrent read test in parallel

		var wg sync.WaitGroup
		readCount := 50

		for i := 0; i < readCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bids, err := repo.GetBids(ctx, "auction1")
				require.NoError(t, err)
				require.Equal(t, []model.Bid{bid1, bid2}, bids)
			}()
		}

		wg.Wait()
	})
}

// Test GetAuctionsByBidder
func TestMemoryRepo_GetAuctionsByBidder(t *testing.T) {
	t.Parallel() // Allow running in parallel with other test functions

	ctx := context.Background()
	repo := NewMemoryRepo()
	for _, id := range []string{"auction1", "auction2", "auction3"} {
		require.NoError(t, repo.CreateAuction(ctx, newAuction(id, 50, base.Add(time.Hour))))
	}

	require.NoError(t, commitBid(t, repo, newBid("bid1", "auction1", "user1", 100, base)))
	require.NoError(t, commitBid(t, repo, newBid("bid2", "auction2", "user1", 150, base)))
	require.NoError(t, commitBid(t, repo, newBid("bid3", "auction3", "user2", 200, base)))
	// Duplicate bids on the same auction for user2
	require.NoError(t, commitBid(t, repo, newBid("bid4", "auction3", "user2", 250, base)))

	ids := func(auctions []model.Auction) []string {
		out := make([]string, 0, len(auctions))
		for _, a := range auctions {
			out = append(out, a.AuctionID)
		}
		return out
	}

	tests := []struct {
		name    string
		userID  string
		wantIDs []string
		wantErr error
	}{
		{name: "user_with_multiple_auctions", userID: "user1", wantIDs: []string{"auction1", "auction2"}},
		{name: "duplicate_bids_same_auction", userID: "user2", wantIDs: []string{"auction3"}},
		{name: "user_with_no_auctions", userID: "userX", wantErr: biddingerrors.ErrUserNoBids},
		{name: "empty_userID", userID: "", wantErr: biddingerrors.ErrUserNoBids},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run table test cases in parallel

			auctions, err := repo.GetAuctionsByBidder(ctx, tc.userID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, tc.wantIDs, ids(auctions))
		})
	}
}

// Test ListOpenAuctions and SaveAuction
func TestMemoryRepo_ListOpenAuctions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("late", 50, base.Add(2*time.Hour))))
	require.NoError(t, repo.CreateAuction(ctx, newAuction("early", 50, base.Add(time.Hour))))
	require.NoError(t, repo.CreateAuction(ctx, newAuction("done", 50, base.Add(30*time.Minute))))

	done, err := repo.GetAuction(ctx, "done")
	require.NoError(t, err)
	done.Status = model.StatusEnded
	done.EndReason = model.EndReasonNoBids
	done.Version = 1

	require.ErrorIs(t, repo.SaveAuction(ctx, done, 7), biddingerrors.ErrVersionConflict)
	require.NoError(t, repo.SaveAuction(ctx, done, 0))
	require.ErrorIs(t, repo.SaveAuction(ctx, newAuction("missing", 1, base), 0), biddingerrors.ErrAuctionNotFound)

	open, err := repo.ListOpenAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, "early", open[0].AuctionID)
	require.Equal(t, "late", open[1].AuctionID)
}
