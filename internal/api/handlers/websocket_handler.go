package handlers

import (
	"net/http"

	"auction-worker/internal/domain"
	"auction-worker/internal/infrastructure/websocket"
	"auction-worker/pkg/logger"
	"auction-worker/pkg/utils"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams document events of the worker's auction.
type WebSocketHandler struct {
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		log:         log,
	}
}

func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	auctionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return nil
	}

	clientID := utils.GenerateID("client")
	wsConn := websocket.NewWebSocketConnection(conn, clientID, auctionID)
	if err := h.connManager.RegisterConnection(clientID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return nil
	}

	defer func() {
		h.connManager.UnregisterConnection(clientID, auctionID)
		conn.Close()
	}()

	if err := wsConn.ReadLoop(); err != nil && !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
		h.log.Debug("Feed connection closed", "client_id", clientID, "error", err)
	}
	return nil
}
