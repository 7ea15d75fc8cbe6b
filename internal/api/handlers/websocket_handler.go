package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"bidding-service/internal/domain"
	ws "bidding-service/internal/infrastructure/websocket"
	"bidding-service/internal/services"
	"bidding-service/pkg/logger"
)

// WebSocketHandler streams bid.placed / auction.finished broadcasts to clients
// watching an auction.
type WebSocketHandler struct {
	bidService  *services.BidService
	connManager domain.ConnectionManager
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(bidService *services.BidService, connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bidService:  bidService,
		connManager: connManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	auctionID := c.Param("id")
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	if _, err := h.bidService.GetAuction(c.Request().Context(), auctionID); err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to look up auction"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection",
			"auction_id", auctionID, "user_id", userID, "error", err)
		return err
	}

	wsConn := ws.NewConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		wsConn.Close()
		return err
	}

	// Hold the connection open; clients only receive broadcasts.
	go h.readUntilClose(wsConn, conn, userID, auctionID)
	return nil
}

func (h *WebSocketHandler) readUntilClose(wsConn *ws.Connection, conn *websocket.Conn, userID, auctionID string) {
	defer func() {
		h.connManager.UnregisterConnection(userID, auctionID)
		wsConn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
