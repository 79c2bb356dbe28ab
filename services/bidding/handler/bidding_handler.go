package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/broadcast"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	OpenAuction(ctx context.Context, listing model.AuctionListing) (model.Auction, error)
	PlaceBid(ctx context.Context, sub model.BidSubmission) (model.BidResult, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetBids(ctx context.Context, auctionID string) ([]model.BidView, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.BidView, error)
	GetAuctionsByBidder(ctx context.Context, userID string) ([]model.Auction, error)
	CloseAuction(ctx context.Context, auctionID string) (model.Auction, error)
	Join(ctx context.Context, auctionID string, sub *broadcast.Subscriber) error
	Leave(ctx context.Context, auctionID string, sub *broadcast.Subscriber) error
	Disconnect(sub *broadcast.Subscriber)
}

const defaultSubscriberBuffer = 64

type BiddingHandler struct {
	service          BiddingServiceInterface
	upgrader         websocket.Upgrader
	subscriberBuffer int
}

func NewBiddingHandler(service BiddingServiceInterface, subscriberBuffer int) *BiddingHandler {
	if subscriberBuffer <= 0 {
		subscriberBuffer = defaultSubscriberBuffer
	}
	return &BiddingHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// participants connect from the storefront origin and from native apps
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscriberBuffer: subscriberBuffer,
	}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), req.Submission())
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONRejection(c, status, fmt.Errorf("%s: %w", message, err), result, message)
		utils.Warn("RecordBidHandler: bid rejected", map[string]any{
			"handler":    "RecordBidHandler",
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"reason":     result.Reason,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, result, "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     result.BidID,
		"auction_id": req.AuctionID,
		"bidder_id":  req.BidderID,
		"leader_id":  result.LeaderID,
	})
}

// OpenAuctionHandler handles POST /auctions
func (h *BiddingHandler) OpenAuctionHandler(c *gin.Context) {
	var req helpers.OpenAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "OpenAuctionHandler", err)
		return
	}

	auction, err := h.service.OpenAuction(c.Request.Context(), req.Listing())
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("OpenAuctionHandler: failed to open auction", map[string]any{
			"listing_id": req.ListingID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction.View(), "auction opened successfully")
	helpers.LogSuccess("OpenAuctionHandler", "auction opened successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"listing_id": auction.ListingID,
		"end_time":   auction.EndTime,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction.View(), "auction retrieved successfully")
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBids(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.BidView{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bid, "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.CloseAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CloseAuctionHandler: failed to close auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction.View(), "auction closed successfully")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", map[string]any{
		"auction_id": auctionID,
		"winner_id":  auction.WinnerID,
		"end_reason": auction.EndReason,
	})
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionsByUserHandler: error retrieving auctions", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	views := make([]model.AuctionView, 0, len(auctions))
	for _, a := range auctions {
		views = append(views, a.View())
	}

	utils.JSONResponse(c, http.StatusOK, views, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(views),
	})
}

// WebsocketHandler handles GET /ws?user_id=
func (h *BiddingHandler) WebsocketHandler(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		utils.JSONError(c, http.StatusBadRequest, errors.New("missing user_id"), "invalid request payload")
		utils.Warn("WebsocketHandler: missing user_id", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		utils.Warn("WebsocketHandler: upgrade failed", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	sub := broadcast.NewSubscriber(userID, h.subscriberBuffer)
	helpers.LogSuccess("WebsocketHandler", "participant connected", map[string]any{
		"user_id":       userID,
		"subscriber_id": sub.ID(),
	})
	broadcast.NewClient(conn, sub, h.service).Run(c.Request.Context())
}
