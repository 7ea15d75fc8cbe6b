package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"bidding-service/internal/domain"
	"bidding-service/internal/services"
	"bidding-service/pkg/logger"
)

// BidHandler is the request/response boundary used by the web client. Bid
// submission resolves to one ApplyBid call; business rejections come back as
// typed outcomes with HTTP 200, never as raw internal errors.
type BidHandler struct {
	bidService *services.BidService
	log        logger.Logger
}

type PlaceBidRequest struct {
	Bidder string `json:"bidder"`
	Amount int64  `json:"amount"`
}

type PlaceBidResponse struct {
	AuctionID  string `json:"auction_id"`
	Outcome    string `json:"outcome"`
	Accepted   bool   `json:"accepted"`
	HighBid    int64  `json:"high_bid"`
	HighBidder string `json:"high_bidder"`
}

type AuctionResponse struct {
	ID           string    `json:"id"`
	Seller       string    `json:"seller"`
	AuctionEnd   time.Time `json:"auction_end"`
	ReservePrice int64     `json:"reserve_price"`
	State        string    `json:"state"`
	HighBid      int64     `json:"high_bid"`
	HighBidder   string    `json:"high_bidder"`
}

type BidResponse struct {
	Bidder   string    `json:"bidder"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

func NewBidHandler(bidService *services.BidService, log logger.Logger) *BidHandler {
	return &BidHandler{
		bidService: bidService,
		log:        log,
	}
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	auctionID := c.Param("id")

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if req.Bidder == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Bidder is required"})
	}
	if req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Amount must be positive"})
	}

	outcome, auction, err := h.bidService.PlaceBid(c.Request().Context(), auctionID, req.Bidder, req.Amount, time.Now().UTC())
	if err != nil {
		h.log.Error("Failed to place bid", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to place bid"})
	}

	if outcome == domain.BidRejectedNotFound {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
	}

	return c.JSON(http.StatusOK, PlaceBidResponse{
		AuctionID:  auctionID,
		Outcome:    outcome.String(),
		Accepted:   outcome.Accepted(),
		HighBid:    auction.HighBid,
		HighBidder: auction.HighBidder,
	})
}

func (h *BidHandler) GetAuction(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.bidService.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
		}
		h.log.Error("Failed to get auction", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get auction"})
	}

	return c.JSON(http.StatusOK, AuctionResponse{
		ID:           auction.ID,
		Seller:       auction.Seller,
		AuctionEnd:   auction.AuctionEnd,
		ReservePrice: auction.ReservePrice,
		State:        auction.State(time.Now()).String(),
		HighBid:      auction.HighBid,
		HighBidder:   auction.HighBidder,
	})
}

func (h *BidHandler) GetBidHistory(c echo.Context) error {
	auctionID := c.Param("id")

	bids, err := h.bidService.GetBidHistory(c.Request().Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
		}
		h.log.Error("Failed to get bid history", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get bid history"})
	}

	response := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		response = append(response, BidResponse{
			Bidder:   bid.Bidder,
			Amount:   bid.Amount,
			PlacedAt: bid.PlacedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}
