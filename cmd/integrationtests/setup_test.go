package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auctionclock"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/broadcast"
	"auction-engine/internal/repository"
	"auction-engine/internal/sequencer"
	"auction-engine/internal/server"
	"auction-engine/services/bidding/helpers"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// TestEnv is a fully wired engine behind the real router
type TestEnv struct {
	Router *gin.Engine
	Engine *bidding.BiddingService
	Repo   *repository.MemoryRepo
	Clock  *clock.Mock
}

// SetupTestEnv initializes the router with an in-memory repository and a mock clock.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMock()
	clk.Set(base)
	repo := repository.NewMemoryRepo()
	engine := bidding.NewBiddingService(repo, broadcast.NewHub(), nil, clk, bidding.Config{
		Policy:        auctionclock.Policy{TriggerWindow: 5 * time.Minute, ExtensionAmount: 5 * time.Minute},
		MaxExtensions: 10,
		Sequencer:     sequencer.Config{QueueSize: 256, MaxWait: 5 * time.Second, IdleTimeout: time.Minute},
	})
	t.Cleanup(engine.Stop)

	return &TestEnv{
		Router: server.SetupRouter(engine, 32),
		Engine: engine,
		Repo:   repo,
		Clock:  clk,
	}
}

// OpenAuction opens an auction through the API and returns its ID
func (e *TestEnv) OpenAuction(t *testing.T, starting, increment int64, reserve *int64, d time.Duration) string {
	t.Helper()

	req := helpers.OpenAuctionRequest{
		ListingID:       "listing-" + t.Name(),
		OwnerID:         "seller",
		Currency:        "JPY",
		StartingPrice:   decimal.NewFromInt(starting),
		MinBidIncrement: decimal.NewFromInt(increment),
		EndTime:         base.Add(d),
	}
	if reserve != nil {
		r := decimal.NewFromInt(*reserve)
		req.ReservePrice = &r
	}

	resp, w := ExecuteRequestAndParse(t, e.Router, http.MethodPost, "/auctions", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp["data"].(map[string]any)
	return data["auction_id"].(string)
}

// Bid submits a manual bid through the API
func (e *TestEnv) Bid(t *testing.T, auctionID, bidderID string, amount int64) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, e.Router, http.MethodPost, "/bids", helpers.PlaceBidRequest{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
	})
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

func int64Ptr(v int64) *int64 { return &v }
