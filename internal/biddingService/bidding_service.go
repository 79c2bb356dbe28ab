package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionclock"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/broadcast"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/proxy"
	"auction-engine/internal/repository"
	"auction-engine/internal/sequencer"
	"auction-engine/internal/validator"
	"auction-engine/utils"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bidding-service")

// Notifier hands notifications to the external delivery pipeline
type Notifier interface {
	Dispatch(n notify.Notification) bool
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(notify.Notification) bool { return false }

// Config holds the engine tunables
type Config struct {
	Policy           auctionclock.Policy
	MaxExtensions    int
	DefaultIncrement decimal.Decimal
	Rules            validator.Rules
	Sequencer        sequencer.Config
	// RetryDelay is how long a failed clock tick waits before trying again
	RetryDelay time.Duration
}

// BiddingService is the live auction engine. Every mutation of an auction
// runs on that auction's sequencer queue: read, validate, resolve, commit,
// then broadcast.
type BiddingService struct {
	repo     repository.AuctionStore
	hub      *broadcast.Hub
	notifier Notifier
	clk      clock.Clock
	seq      *sequencer.Sequencer
	sched    *auctionclock.Scheduler
	cfg      Config
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionStore, hub *broadcast.Hub, notifier Notifier, clk clock.Clock, cfg Config) *BiddingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if !cfg.DefaultIncrement.IsPositive() {
		cfg.DefaultIncrement = decimal.NewFromInt(1)
	}

	s := &BiddingService{
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		clk:      clk,
		seq:      sequencer.New(cfg.Sequencer),
		cfg:      cfg,
	}
	s.sched = auctionclock.NewScheduler(clk, cfg.Policy.TriggerWindow, s.onTimer)
	return s
}

// Start arms the clock of every open auction in the store
func (s *BiddingService) Start(ctx context.Context) error {
	open, err := s.repo.ListOpenAuctions(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to list open auctions: %w", err)
	}
	for _, a := range open {
		s.sched.Schedule(a)
	}
	utils.Info("bidding service started", map[string]any{"open_auctions": len(open)})
	return nil
}

// Stop cancels clocks and drains the per-auction queues
func (s *BiddingService) Stop() {
	s.sched.Stop()
	s.seq.Stop()
}

// OpenAuction creates an auction for a published listing
func (s *BiddingService) OpenAuction(ctx context.Context, listing models.AuctionListing) (models.Auction, error) {
	ctx, span := tracer.Start(ctx, "bidding.open_auction")
	defer span.End()

	now := s.clk.Now().UTC()
	if err := s.validateListing(listing, now); err != nil {
		return models.Auction{}, err
	}

	a := models.Auction{
		AuctionID:       utils.GenerateID(),
		ListingID:       listing.ListingID,
		OwnerID:         listing.OwnerID,
		Currency:        listing.Currency,
		StartingPrice:   listing.StartingPrice,
		CurrentPrice:    listing.StartingPrice,
		ReservePrice:    listing.ReservePrice,
		MinBidIncrement: listing.MinBidIncrement,
		StartTime:       listing.StartTime,
		EndTime:         listing.EndTime,
		MaxExtensions:   s.cfg.MaxExtensions,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if a.MinBidIncrement.IsZero() {
		a.MinBidIncrement = s.cfg.DefaultIncrement
	}
	if a.StartTime.IsZero() {
		a.StartTime = now
	}
	if listing.MaxExtensions != nil {
		a.MaxExtensions = *listing.MaxExtensions
	}
	a.Status = auctionclock.StatusAt(a, now, s.cfg.Policy.TriggerWindow)

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		span.RecordError(err)
		return models.Auction{}, fmt.Errorf("service: failed to open auction for listing %s: %w", listing.ListingID, err)
	}
	s.sched.Schedule(a)

	span.SetAttributes(attribute.String("auction_id", a.AuctionID))
	utils.Info("auction opened", map[string]any{
		"auction_id": a.AuctionID,
		"listing_id": a.ListingID,
		"status":     a.Status,
		"end_time":   a.EndTime,
	})
	return a, nil
}

// validateListing checks the listing fields an auction cannot run without
func (s *BiddingService) validateListing(l models.AuctionListing, now time.Time) error {
	switch {
	case l.ListingID == "" || l.OwnerID == "":
		return fmt.Errorf("service: %w - missing listing or owner", biddingerrors.ErrInvalidAuction)
	case l.Currency == "":
		return fmt.Errorf("service: %w - missing currency", biddingerrors.ErrInvalidAuction)
	case l.StartingPrice.IsNegative():
		return fmt.Errorf("service: %w - negative starting price", biddingerrors.ErrInvalidAuction)
	case l.MinBidIncrement.IsNegative():
		return fmt.Errorf("service: %w - negative bid increment", biddingerrors.ErrInvalidAuction)
	case l.ReservePrice != nil && l.ReservePrice.IsNegative():
		return fmt.Errorf("service: %w - negative reserve price", biddingerrors.ErrInvalidAuction)
	case l.MaxExtensions != nil && *l.MaxExtensions < 0:
		return fmt.Errorf("service: %w - negative max extensions", biddingerrors.ErrInvalidAuction)
	case !l.EndTime.After(now):
		return fmt.Errorf("service: %w - end time must be in the future", biddingerrors.ErrInvalidAuction)
	case !l.StartTime.IsZero() && !l.EndTime.After(l.StartTime):
		return fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// PlaceBid sequences, validates, resolves and commits one bid submission.
// The result is always populated; a non-nil error means the bid was rejected
// and the result carries the rejection reason.
func (s *BiddingService) PlaceBid(ctx context.Context, sub models.BidSubmission) (models.BidResult, error) {
	ctx, span := tracer.Start(ctx, "bidding.place_bid")
	defer span.End()
	span.SetAttributes(
		attribute.String("auction_id", sub.AuctionID),
		attribute.String("bid.kind", string(sub.Kind)),
	)

	started := time.Now()
	defer func() { metrics.BidLatency.Observe(time.Since(started).Seconds()) }()

	var result models.BidResult
	err := s.checkSubmission(sub)
	if err == nil {
		err = s.seq.Submit(ctx, sub.AuctionID, func(ctx context.Context) error {
			var applyErr error
			result, applyErr = s.applyBid(ctx, sub)
			return applyErr
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, biddingerrors.Reason(err))
		metrics.BidsTotal.WithLabelValues(biddingerrors.Reason(err), string(sub.Kind)).Inc()
		s.logRejection(sub, err)
		return rejection(err), fmt.Errorf("service: failed to place bid on auction %s by user %s: %w", sub.AuctionID, sub.BidderID, err)
	}

	metrics.BidsTotal.WithLabelValues("accepted", string(sub.Kind)).Inc()
	return result, nil
}

func (s *BiddingService) checkSubmission(sub models.BidSubmission) error {
	if sub.AuctionID == "" {
		return fmt.Errorf("service: %w - missing auction ID", biddingerrors.ErrInvalidBid)
	}
	return validator.CheckShape(candidate(sub))
}

func candidate(sub models.BidSubmission) validator.Candidate {
	return validator.Candidate{
		BidderID: sub.BidderID,
		Kind:     sub.Kind,
		Amount:   sub.Amount,
		Ceiling:  sub.ProxyCeiling,
	}
}

func rejection(err error) models.BidResult {
	res := models.BidResult{Accepted: false, Reason: biddingerrors.Reason(err)}
	var tooLow *biddingerrors.BidTooLowError
	if errors.As(err, &tooLow) {
		minimum := tooLow.Minimum
		res.MinimumBid = &minimum
	}
	return res
}

func (s *BiddingService) logRejection(sub models.BidSubmission, err error) {
	fields := map[string]any{
		"auction_id": sub.AuctionID,
		"bidder_id":  sub.BidderID,
		"kind":       sub.Kind,
		"reason":     biddingerrors.Reason(err),
		"error":      err.Error(),
	}
	switch {
	case errors.Is(err, biddingerrors.ErrBidImplausible):
		// kept for fraud review
		fields["amount"] = sub.Amount.String()
		if sub.ProxyCeiling != nil {
			fields["proxy_ceiling"] = sub.ProxyCeiling.String()
		}
		utils.Warn("bid flagged as implausible", fields)
	case biddingerrors.Reason(err) == "internal_error":
		utils.Error("bid failed", fields)
	default:
		utils.Info("bid rejected", fields)
	}
}

// applyBid runs on the auction's sequencer queue
func (s *BiddingService) applyBid(ctx context.Context, sub models.BidSubmission) (models.BidResult, error) {
	a, err := s.repo.GetAuction(ctx, sub.AuctionID)
	if err != nil {
		return models.BidResult{}, err
	}
	if sub.ListingID != "" && sub.ListingID != a.ListingID {
		return models.BidResult{}, fmt.Errorf("service: %w - listing %s does not belong to auction %s", biddingerrors.ErrInvalidBid, sub.ListingID, a.AuctionID)
	}

	now := s.clk.Now().UTC()
	status := auctionclock.StatusAt(a, now, s.cfg.Policy.TriggerWindow)
	if err := validator.Validate(candidate(sub), a, status, s.cfg.Rules); err != nil {
		return models.BidResult{}, err
	}

	ceilings, err := s.repo.GetProxyCeilings(ctx, a.AuctionID)
	if err != nil {
		return models.BidResult{}, fmt.Errorf("service: failed to load proxy ceilings: %w", err)
	}
	history, err := s.repo.GetBids(ctx, a.AuctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		return models.BidResult{}, fmt.Errorf("service: failed to load bid history: %w", err)
	}

	entry := proxy.Entry{
		BidderID: sub.BidderID,
		Kind:     sub.Kind,
		Amount:   sub.Amount,
		PlacedAt: now,
	}
	if sub.Kind == models.BidKindProxy {
		entry.Ceiling = *sub.ProxyCeiling
	}
	res := proxy.Resolve(resolverState(a, ceilings), entry)

	bids, leadingBidID := s.recordedBids(a.AuctionID, sub, res, now)

	prev := a
	next := a
	next.CurrentPrice = res.Price
	next.LeaderID = res.LeaderID
	if leadingBidID != "" {
		next.LeadingBidID = leadingBidID
	}
	next.BidCount += len(bids)
	next.UniqueBidders = countBidders(history, bids)
	extended := auctionclock.Extend(&next, now, s.cfg.Policy)
	next.Status = auctionclock.StatusAt(next, now, s.cfg.Policy.TriggerWindow)
	next.ReserveMet = next.IsReserveMet()
	next.Version = prev.Version + 1
	next.UpdatedAt = now

	commit := repository.BidCommit{
		Auction:         next,
		ExpectedVersion: prev.Version,
		Bids:            bids,
	}
	if sub.Kind == models.BidKindProxy {
		commit.Ceiling = &models.ProxyCeiling{
			AuctionID: a.AuctionID,
			BidderID:  sub.BidderID,
			Ceiling:   *sub.ProxyCeiling,
			PlacedAt:  now,
		}
	}
	if err := s.repo.CommitBid(ctx, commit); err != nil {
		return models.BidResult{}, fmt.Errorf("service: failed to commit bid on auction %s: %w", a.AuctionID, err)
	}
	s.sched.Schedule(next)

	if extended {
		metrics.ExtensionsTotal.Inc()
	}
	s.publishBid(prev, next, sub, bids[0], res, extended, now)

	utils.Info("bid accepted", map[string]any{
		"auction_id":    next.AuctionID,
		"bid_id":        bids[0].BidID,
		"bidder_id":     sub.BidderID,
		"kind":          sub.Kind,
		"current_price": next.CurrentPrice.String(),
		"leader_id":     next.LeaderID,
		"extended":      extended,
		"version":       next.Version,
	})

	price := next.CurrentPrice
	count := next.BidCount
	end := next.EndTime
	return models.BidResult{
		Accepted:        true,
		BidID:           bids[0].BidID,
		NewCurrentPrice: &price,
		NewBidCount:     &count,
		LeaderID:        next.LeaderID,
		EndTime:         &end,
	}, nil
}

func resolverState(a models.Auction, ceilings []models.ProxyCeiling) proxy.State {
	st := proxy.State{
		CurrentPrice: a.CurrentPrice,
		Increment:    a.MinBidIncrement,
		LeaderID:     a.LeaderID,
		Ceilings:     make([]proxy.Standing, 0, len(ceilings)),
	}
	for _, c := range ceilings {
		st.Ceilings = append(st.Ceilings, proxy.Standing{BidderID: c.BidderID, Ceiling: c.Ceiling, PlacedAt: c.PlacedAt})
	}
	return st
}

// recordedBids builds the entrant's bid and, when a standing ceiling
// defended the lead, the automatic bid placed for it. The entrant's bid is
// always first.
func (s *BiddingService) recordedBids(auctionID string, sub models.BidSubmission, res proxy.Resolution, now time.Time) ([]models.Bid, string) {
	entrant := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  sub.BidderID,
		Amount:    res.EntrantAmount,
		Kind:      sub.Kind,
		PlacedAt:  now,
		Status:    models.BidOutbid,
	}
	if sub.Kind == models.BidKindProxy {
		ceiling := *sub.ProxyCeiling
		entrant.ProxyCeiling = &ceiling
	}
	if res.EntrantLeads {
		entrant.Status = models.BidLeading
		return []models.Bid{entrant}, entrant.BidID
	}

	if res.AutoBid == nil {
		return []models.Bid{entrant}, ""
	}
	auto := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  res.AutoBid.BidderID,
		Amount:    res.AutoBid.Amount,
		Kind:      models.BidKindProxy,
		PlacedAt:  now,
		Status:    models.BidLeading,
	}
	return []models.Bid{entrant, auto}, auto.BidID
}

func countBidders(history, added []models.Bid) int {
	seen := make(map[string]struct{}, len(history)+len(added))
	for _, b := range history {
		seen[b.BidderID] = struct{}{}
	}
	for _, b := range added {
		seen[b.BidderID] = struct{}{}
	}
	return len(seen)
}

// publishBid fans out the events of one committed submission in order
func (s *BiddingService) publishBid(prev, next models.Auction, sub models.BidSubmission, entrant models.Bid, res proxy.Resolution, extended bool, now time.Time) {
	// proxy ceilings stay private; the broadcast carries the resulting price
	amount := next.CurrentPrice
	if sub.Kind != models.BidKindProxy {
		amount = entrant.Amount
	}

	s.hub.Publish(models.Event{
		Type:      models.EventBidPlaced,
		AuctionID: next.AuctionID,
		Seq:       next.Version,
		Data: models.BidPlaced{
			AuctionID:         next.AuctionID,
			Amount:            amount,
			BidderDisplayName: models.DisplayName(sub.BidderID),
			LeaderDisplayName: models.DisplayName(next.LeaderID),
			NewCurrentPrice:   next.CurrentPrice,
			NewBidCount:       next.BidCount,
			NextMinBid:        next.NextMinimumBid(),
			ReserveMet:        next.IsReserveMet(),
			Timestamp:         now,
		},
	})

	if extended {
		s.hub.Publish(models.Event{
			Type:      models.EventAuctionExtended,
			AuctionID: next.AuctionID,
			Seq:       next.Version,
			Data: models.AuctionExtended{
				AuctionID:        next.AuctionID,
				NewEndTime:       next.EndTime,
				ExtensionMinutes: s.cfg.Policy.ExtensionAmount.Minutes(),
				ExtensionCount:   next.ExtensionCount,
				Reason:           "bid_in_final_window",
			},
		})
	}

	if next.Status != prev.Status {
		s.publishStatus(prev.Status, next)
	}

	if res.PreviousLeaderID != "" && res.PreviousLeaderID != next.LeaderID {
		remaining := next.EndTime.Sub(now).Seconds()
		s.hub.PublishTo(res.PreviousLeaderID, models.Event{
			Type:      models.EventOutbid,
			AuctionID: next.AuctionID,
			Seq:       next.Version,
			Data: models.Outbid{
				AuctionID:     next.AuctionID,
				PreviousBid:   prev.CurrentPrice,
				NewHighestBid: next.CurrentPrice,
				TimeRemaining: remaining,
			},
		})

		previous := prev.CurrentPrice
		current := next.CurrentPrice
		s.notifier.Dispatch(notify.Notification{
			Kind:          notify.KindOutbid,
			AuctionID:     next.AuctionID,
			ListingID:     next.ListingID,
			RecipientID:   res.PreviousLeaderID,
			PreviousBid:   &previous,
			CurrentPrice:  &current,
			TimeRemaining: remaining,
			CreatedAt:     now,
		})
	}
}

func (s *BiddingService) publishStatus(from models.AuctionStatus, a models.Auction) {
	s.hub.Publish(models.Event{
		Type:      models.EventStatusChanged,
		AuctionID: a.AuctionID,
		Seq:       a.Version,
		Data: models.StatusChanged{
			AuctionID: a.AuctionID,
			From:      from,
			To:        a.Status,
			EndTime:   a.EndTime,
		},
	})
}

// onTimer is the scheduler callback; the tick itself runs on the auction's queue
func (s *BiddingService) onTimer(auctionID string) {
	err := s.seq.Submit(context.Background(), auctionID, func(ctx context.Context) error {
		return s.tick(ctx, auctionID)
	})
	if err == nil || errors.Is(err, biddingerrors.ErrSequencerStopped) {
		return
	}

	utils.Error("auction clock tick failed, retrying", map[string]any{
		"auction_id":  auctionID,
		"retry_after": s.cfg.RetryDelay.String(),
		"error":       err.Error(),
	})
	s.sched.ScheduleAfter(auctionID, s.cfg.RetryDelay)
}

// tick applies the status transition that is due, if any, and re-arms the clock
func (s *BiddingService) tick(ctx context.Context, auctionID string) error {
	ctx, span := tracer.Start(ctx, "bidding.tick")
	defer span.End()
	span.SetAttributes(attribute.String("auction_id", auctionID))

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			s.sched.Cancel(auctionID)
			return nil
		}
		return err
	}
	if a.Status == models.StatusEnded {
		s.sched.Cancel(auctionID)
		return nil
	}

	now := s.clk.Now().UTC()
	status := auctionclock.StatusAt(a, now, s.cfg.Policy.TriggerWindow)
	if status == models.StatusEnded {
		_, err := s.finalize(ctx, a, now, "")
		return err
	}

	if status != a.Status {
		prev := a
		a.Status = status
		a.Version++
		a.UpdatedAt = now
		if err := s.repo.SaveAuction(ctx, a, prev.Version); err != nil {
			span.RecordError(err)
			return fmt.Errorf("service: failed to save status of auction %s: %w", auctionID, err)
		}
		s.publishStatus(prev.Status, a)
		if status == models.StatusEndingSoon {
			end := a.EndTime
			s.notifier.Dispatch(notify.Notification{
				Kind:          notify.KindEndingSoon,
				AuctionID:     a.AuctionID,
				ListingID:     a.ListingID,
				EndTime:       &end,
				TimeRemaining: a.EndTime.Sub(now).Seconds(),
				CreatedAt:     now,
			})
		}
	}
	s.sched.Schedule(a)
	return nil
}

// finalize closes a and commits it before anything is broadcast.
// A failed commit leaves the auction open.
func (s *BiddingService) finalize(ctx context.Context, a models.Auction, now time.Time, reason string) (models.Auction, error) {
	prev := a
	if !auctionclock.Finalize(&a, now, reason) {
		return a, nil
	}
	a.Version = prev.Version + 1

	if err := s.repo.SaveAuction(ctx, a, prev.Version); err != nil {
		return prev, fmt.Errorf("service: failed to finalize auction %s: %w", a.AuctionID, err)
	}
	s.sched.Cancel(a.AuctionID)
	metrics.AuctionsFinalized.WithLabelValues(a.EndReason).Inc()

	var winning decimal.Decimal
	if a.LeaderID != "" {
		winning = a.CurrentPrice
	}
	s.hub.Publish(models.Event{
		Type:      models.EventAuctionEnded,
		AuctionID: a.AuctionID,
		Seq:       a.Version,
		Data: models.AuctionEnded{
			AuctionID:  a.AuctionID,
			WinnerID:   a.WinnerID,
			WinningBid: winning,
			TotalBids:  a.BidCount,
			ReserveMet: a.ReserveMet,
			EndReason:  a.EndReason,
		},
	})

	s.notifier.Dispatch(notify.Notification{
		Kind:         notify.KindAuctionEnded,
		AuctionID:    a.AuctionID,
		ListingID:    a.ListingID,
		CurrentPrice: &winning,
		EndReason:    a.EndReason,
		CreatedAt:    now,
	})
	if a.WinnerID != "" && a.ReserveMet {
		s.notifier.Dispatch(notify.Notification{
			Kind:         notify.KindWon,
			AuctionID:    a.AuctionID,
			ListingID:    a.ListingID,
			RecipientID:  a.WinnerID,
			CurrentPrice: &winning,
			EndReason:    a.EndReason,
			CreatedAt:    now,
		})
	}

	utils.Info("auction finalized", map[string]any{
		"auction_id":  a.AuctionID,
		"winner_id":   a.WinnerID,
		"winning_bid": winning.String(),
		"reserve_met": a.ReserveMet,
		"end_reason":  a.EndReason,
		"bid_count":   a.BidCount,
	})
	return a, nil
}

// CloseAuction ends an auction immediately. Closing an ended auction is a no-op.
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	ctx, span := tracer.Start(ctx, "bidding.close_auction")
	defer span.End()
	span.SetAttributes(attribute.String("auction_id", auctionID))

	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	var closed models.Auction
	err := s.seq.Submit(ctx, auctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		closed, err = s.finalize(ctx, a, s.clk.Now().UTC(), models.EndReasonClosedByAdmin)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return models.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	return closed, nil
}

// GetAuction returns the auction with its effective status at the current time
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	a.Status = auctionclock.StatusAt(a, s.clk.Now(), s.cfg.Policy.TriggerWindow)
	return a, nil
}

// GetBids returns the bid history of an auction with derived outcomes
func (s *BiddingService) GetBids(ctx context.Context, auctionID string) ([]models.BidView, error) {
	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	bids, err := s.repo.GetBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	views := make([]models.BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, models.NewBidView(b, a))
	}
	return views, nil
}

// GetWinningBid returns the bid currently leading (or that won) an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.BidView, error) {
	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return models.BidView{}, err
	}
	if a.LeadingBidID == "" {
		return models.BidView{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	bids, err := s.repo.GetBids(ctx, auctionID)
	if err != nil {
		return models.BidView{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].BidID == a.LeadingBidID {
			return models.NewBidView(bids[i], a), nil
		}
	}
	return models.BidView{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	now := s.clk.Now()
	for i := range auctions {
		auctions[i].Status = auctionclock.StatusAt(auctions[i], now, s.cfg.Policy.TriggerWindow)
	}
	return auctions, nil
}

// Join subscribes sub to an auction and sends it the current snapshot.
// It runs on the auction's queue so the snapshot precedes every later event.
func (s *BiddingService) Join(ctx context.Context, auctionID string, sub *broadcast.Subscriber) error {
	return s.seq.Submit(ctx, auctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("service: failed to join auction %s: %w", auctionID, err)
		}
		a.Status = auctionclock.StatusAt(a, s.clk.Now(), s.cfg.Policy.TriggerWindow)

		s.hub.Join(auctionID, sub)
		s.hub.Send(sub, models.Event{
			Type:      models.EventSnapshot,
			AuctionID: auctionID,
			Seq:       a.Version,
			Data:      a.View(),
		})
		return nil
	})
}

// Leave unsubscribes sub from an auction
func (s *BiddingService) Leave(_ context.Context, auctionID string, sub *broadcast.Subscriber) error {
	s.hub.Leave(auctionID, sub)
	return nil
}

// Disconnect drops every subscription of sub
func (s *BiddingService) Disconnect(sub *broadcast.Subscriber) {
	s.hub.LeaveAll(sub)
}
