package services

import (
	"context"

	"auction-worker/internal/domain"
)

// NoopRoundHandler is used until a bidding-round algorithm is plugged in.
type NoopRoundHandler struct{}

func (NoopRoundHandler) OnStage(ctx context.Context, doc *domain.AuctionDocument, stage domain.Stage) error {
	return nil
}

func (NoopRoundHandler) Finish(ctx context.Context, doc *domain.AuctionDocument) ([]domain.Result, error) {
	return nil, nil
}
