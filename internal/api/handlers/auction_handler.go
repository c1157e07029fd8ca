package handlers

import (
	"context"
	"errors"
	"net/http"

	"auction-worker/internal/domain"
	"auction-worker/internal/services"
	"auction-worker/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuctionController is the part of the lifecycle controller exposed over HTTP.
type AuctionController interface {
	AuctionID() string
	LoadDocument(ctx context.Context) (*domain.AuctionDocument, error)
	Cancel(ctx context.Context) (services.Outcome, error)
	Reschedule(ctx context.Context) (services.Outcome, error)
	PostAnnounce(ctx context.Context) (services.Outcome, error)
}

type AuctionHandler struct {
	controller AuctionController
	log        logger.Logger
}

type OperationResponse struct {
	AuctionID string `json:"auction_id"`
	Outcome   string `json:"outcome"`
}

func NewAuctionHandler(controller AuctionController, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		controller: controller,
		log:        log,
	}
}

// ownAuction rejects ids of auctions this worker does not drive.
func (h *AuctionHandler) ownAuction(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Param("id") != h.controller.AuctionID() {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "auction not found"})
		}
		return next(c)
	}
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	doc, err := h.controller.LoadDocument(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, "get", err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	outcome, err := h.controller.Cancel(c.Request().Context())
	return h.operationResponse(c, "cancel", outcome, err)
}

func (h *AuctionHandler) RescheduleAuction(c echo.Context) error {
	outcome, err := h.controller.Reschedule(c.Request().Context())
	return h.operationResponse(c, "reschedule", outcome, err)
}

func (h *AuctionHandler) AnnounceAuction(c echo.Context) error {
	outcome, err := h.controller.PostAnnounce(c.Request().Context())
	return h.operationResponse(c, "announce", outcome, err)
}

func (h *AuctionHandler) operationResponse(c echo.Context, operation string, outcome services.Outcome, err error) error {
	if err != nil {
		return h.errorResponse(c, operation, err)
	}

	status := http.StatusOK
	switch outcome {
	case services.OutcomeNotFound:
		status = http.StatusNotFound
	case services.OutcomeAbandoned:
		status = http.StatusConflict
	}
	return c.JSON(status, OperationResponse{
		AuctionID: h.controller.AuctionID(),
		Outcome:   string(outcome),
	})
}

func (h *AuctionHandler) errorResponse(c echo.Context, operation string, err error) error {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "auction not found"})
	case errors.Is(err, domain.ErrConflictRetriesExhausted), errors.Is(err, domain.ErrAuctionTerminal):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAuctionNotPublished):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}

	h.log.Error("Auction operation failed", "operation", operation, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "operation failed"})
}
