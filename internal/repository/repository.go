package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionStore defines the durable auction record storage used by the bidding engine
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]model.Auction, error)
	GetBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetProxyCeilings(ctx context.Context, auctionID string) ([]model.ProxyCeiling, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	CommitBid(ctx context.Context, commit BidCommit) error
	SaveAuction(ctx context.Context, auction model.Auction, expectedVersion int64) error
}

// BidCommit is everything one accepted submission changes.
// It is applied atomically, or not at all if the stored version moved.
type BidCommit struct {
	Auction         model.Auction
	ExpectedVersion int64
	Bids            []model.Bid
	Ceiling         *model.ProxyCeiling
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction                 // key: auctionID -> value: auction
	bids           map[string][]model.Bid                   // key: auctionID -> value: bids in placement order
	ceilings       map[string]map[string]model.ProxyCeiling // key: auctionID -> bidderID -> ceiling
	bidderAuctions map[string][]string                      // key: bidderID -> value: auctionIDs the bidder has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		ceilings:       make(map[string]map[string]model.ProxyCeiling),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the stored auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListOpenAuctions returns every auction that has not been finalized, ordered by end time
func (r *MemoryRepo) ListOpenAuctions(_ context.Context) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if a.Status != model.StatusEnded {
			open = append(open, a)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].EndTime.Before(open[j].EndTime) })
	return open, nil
}

// GetBids returns all bids for an auction in placement order
func (r *MemoryRepo) GetBids(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return append([]model.Bid(nil), bids...), nil
}

// GetProxyCeilings returns the standing proxy ceilings of an auction, oldest first
func (r *MemoryRepo) GetProxyCeilings(_ context.Context, auctionID string) ([]model.ProxyCeiling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get proxy ceilings for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	out := make([]model.ProxyCeiling, 0, len(r.ceilings[auctionID]))
	for _, c := range r.ceilings[auctionID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

// GetAuctionsByBidder returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.bidderAuctions[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if a, exists := r.auctions[id]; exists {
			auctions = append(auctions, a)
		}
	}
	return auctions, nil
}

// CommitBid applies an accepted submission if the stored version still matches
func (r *MemoryRepo) CommitBid(_ context.Context, commit BidCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := commit.Auction.AuctionID
	stored, ok := r.auctions[id]
	if !ok {
		return fmt.Errorf("commit bid for auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	if stored.Version != commit.ExpectedVersion {
		return fmt.Errorf("commit bid for auction %s: %w - stored version %d, expected %d",
			id, biddingerrors.ErrVersionConflict, stored.Version, commit.ExpectedVersion)
	}

	r.auctions[id] = commit.Auction
	for _, b := range commit.Bids {
		r.bids[id] = append(r.bids[id], b)
		r.addBidderAuction(b.BidderID, id)
	}
	if c := commit.Ceiling; c != nil {
		if r.ceilings[id] == nil {
			r.ceilings[id] = make(map[string]model.ProxyCeiling)
		}
		r.ceilings[id][c.BidderID] = *c
	}
	return nil
}

// SaveAuction replaces the auction record if the stored version still matches
func (r *MemoryRepo) SaveAuction(_ context.Context, auction model.Auction, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[auction.AuctionID]
	if !ok {
		return fmt.Errorf("save auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("save auction %s: %w - stored version %d, expected %d",
			auction.AuctionID, biddingerrors.ErrVersionConflict, stored.Version, expectedVersion)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

func (r *MemoryRepo) addBidderAuction(bidderID, auctionID string) {
	for _, id := range r.bidderAuctions[bidderID] {
		if id == auctionID {
			return
		}
	}
	r.bidderAuctions[bidderID] = append(r.bidderAuctions[bidderID], auctionID)
}
