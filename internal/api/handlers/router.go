package handlers

import (
	"net/http"
	"time"

	"auction-worker/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer wires the control API of one auction worker.
func NewServer(auctionHandler *AuctionHandler, wsHandler *WebSocketHandler, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Debug("Request received",
				"method", req.Method,
				"path", req.URL.Path,
				"remote_addr", c.RealIP(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			return next(c)
		}
	})

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"service":    "auction-worker",
			"auction_id": auctionHandler.controller.AuctionID(),
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	})

	api := e.Group("/api/v1/auctions/:id", auctionHandler.ownAuction)
	api.GET("", auctionHandler.GetAuction)
	api.POST("/cancel", auctionHandler.CancelAuction)
	api.POST("/reschedule", auctionHandler.RescheduleAuction)
	api.POST("/announce", auctionHandler.AnnounceAuction)
	if wsHandler != nil {
		api.GET("/ws", wsHandler.HandleConnection)
	}

	return e
}
