package services

import (
	"context"
	"errors"
	"fmt"

	"auction-worker/internal/domain"
	"auction-worker/pkg/logger"
	"auction-worker/pkg/utils"

	"github.com/samber/lo"
)

// mutation receives a private copy of the stored document (nil when missing)
// and returns the document to write, or nil when there is nothing to do.
type mutation func(current *domain.AuctionDocument) (*domain.AuctionDocument, error)

// mutate runs a read-modify-write under the gate. On a revision conflict the
// document is read again and the mutation re-applied, up to ConflictRetries
// attempts.
func (c *LifecycleController) mutate(ctx context.Context, log logger.Logger, requestID string, eventType domain.DocumentEventType, apply mutation) (*domain.AuctionDocument, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	for attempt := 1; attempt <= c.cfg.ConflictRetries; attempt++ {
		current, err := c.store.Get(ctx, c.auctionID)
		switch {
		case errors.Is(err, domain.ErrDocumentNotFound):
			current = nil
		case err != nil:
			return nil, fmt.Errorf("load document: %w", err)
		default:
			c.setDocument(current)
		}

		next, err := apply(current.Clone())
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}

		next.Revision = ""
		if current != nil {
			next.Revision = current.Revision
		}

		revision, err := c.store.Put(ctx, next)
		if errors.Is(err, domain.ErrStoreConflict) {
			log.Warn("Auction document changed concurrently, retrying", "attempt", attempt, "revision", next.Revision)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save document: %w", err)
		}

		next.Revision = revision
		c.setDocument(next)
		c.publish(ctx, log, requestID, eventType, next)
		return next, nil
	}

	return nil, fmt.Errorf("%s: %w", eventType, domain.ErrConflictRetriesExhausted)
}

func (c *LifecycleController) publish(ctx context.Context, log logger.Logger, requestID string, eventType domain.DocumentEventType, doc *domain.AuctionDocument) {
	if c.publisher == nil {
		return
	}
	event := &domain.DocumentEvent{
		Type:         eventType,
		AuctionID:    doc.ID,
		Revision:     doc.Revision,
		CurrentStage: doc.CurrentStage,
		CurrentPhase: doc.CurrentPhase,
		RequestID:    requestID,
		Timestamp:    c.clock.Now(),
	}
	if err := c.publisher.PublishDocumentEvent(ctx, event); err != nil {
		log.Warn("Failed to publish document event", "type", eventType, "error", err)
	}
}

// StartAuction moves a NEW document to its first stage.
func (c *LifecycleController) StartAuction(ctx context.Context) error {
	return c.switchStage(ctx, 0, domain.EventStarted)
}

// SwitchToStage moves the document forward to stage index. Callbacks that
// arrive late or twice are no-ops.
func (c *LifecycleController) SwitchToStage(ctx context.Context, index int) error {
	return c.switchStage(ctx, index, domain.EventStageSwitch)
}

func (c *LifecycleController) switchStage(ctx context.Context, index int, eventType domain.DocumentEventType) error {
	requestID := utils.NewRequestID()
	log := c.opLog(string(eventType), requestID).With("stage", index)

	doc, err := c.mutate(ctx, log, requestID, eventType, func(current *domain.AuctionDocument) (*domain.AuctionDocument, error) {
		if current == nil {
			return nil, domain.ErrDocumentNotFound
		}
		if current.IsTerminal() {
			log.Info("Auction already in terminal stage, ignoring callback", "current_stage", current.CurrentStage)
			return nil, nil
		}
		if current.CurrentStage >= index {
			log.Debug("Stage already reached, ignoring callback", "current_stage", current.CurrentStage)
			return nil, nil
		}
		if index >= len(current.Stages) {
			return nil, fmt.Errorf("stage %d out of range (%d stages)", index, len(current.Stages))
		}

		stage := current.Stages[index]
		current.CurrentStage = index
		current.CurrentPhase = string(stage.Type)
		if err := c.rounds.OnStage(ctx, current, stage); err != nil {
			return nil, fmt.Errorf("round handler: %w", err)
		}
		return current, nil
	})
	if err != nil {
		log.Error("Failed to switch stage", "error", err)
		return err
	}
	if doc != nil {
		log.Info("Switched to stage", "phase", doc.CurrentPhase)
	}
	return nil
}

// EndAuction records the results and marks the document ENDED. It is the
// natural end of the worker, so it raises the completion signal unless the
// write failed. A deleted document leaves nothing to run and also releases
// the worker.
func (c *LifecycleController) EndAuction(ctx context.Context) error {
	requestID := utils.NewRequestID()
	log := c.opLog("end_auction", requestID)

	doc, err := c.mutate(ctx, log, requestID, domain.EventEnded, func(current *domain.AuctionDocument) (*domain.AuctionDocument, error) {
		if current == nil {
			return nil, domain.ErrDocumentNotFound
		}
		if current.IsTerminal() {
			log.Info("Auction already in terminal stage, nothing to end", "current_stage", current.CurrentStage)
			return nil, nil
		}

		results, err := c.rounds.Finish(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("round handler: %w", err)
		}
		now := c.clock.Now()
		current.CurrentStage = domain.StageEnded
		current.CurrentPhase = string(domain.StageAnnouncement)
		current.EndDate = &now
		current.Results = append(current.Results, results...)
		return current, nil
	})
	if errors.Is(err, domain.ErrDocumentNotFound) {
		log.Warn("Auction document is gone, releasing worker")
		c.done.Raise()
		return err
	}
	if err != nil {
		log.Error("Failed to end auction", "error", err)
		return err
	}
	if doc != nil {
		log.Info("End auction", "results", len(doc.Results))
	}

	c.done.Raise()
	return nil
}

// Cancel forces the document to CANCELED and stamps its end date.
func (c *LifecycleController) Cancel(ctx context.Context) (Outcome, error) {
	return c.terminate(ctx, "cancel", domain.StageCanceled, domain.EventCanceled, true)
}

// Reschedule forces the document to RESCHEDULED. A new worker is expected to
// run the auction again.
func (c *LifecycleController) Reschedule(ctx context.Context) (Outcome, error) {
	return c.terminate(ctx, "reschedule", domain.StageRescheduled, domain.EventRescheduled, false)
}

func (c *LifecycleController) terminate(ctx context.Context, operation string, stage int, eventType domain.DocumentEventType, stampEnd bool) (Outcome, error) {
	requestID := utils.NewRequestID()
	log := c.opLog(operation, requestID)

	outcome := OutcomeApplied
	_, err := c.mutate(ctx, log, requestID, eventType, func(current *domain.AuctionDocument) (*domain.AuctionDocument, error) {
		if current == nil {
			outcome = OutcomeNotFound
			return nil, nil
		}
		if current.IsTerminal() {
			outcome = OutcomeAbandoned
			return nil, nil
		}
		outcome = OutcomeApplied

		current.CurrentStage = stage
		if stampEnd {
			now := c.clock.Now()
			current.EndDate = &now
		}
		return current, nil
	})
	if err != nil {
		log.Error("Failed to change auction status", "status", domain.StageName(stage), "error", err)
		return "", err
	}

	switch outcome {
	case OutcomeNotFound:
		log.Info("Auction not found")
	case OutcomeAbandoned:
		log.Info("Auction already in terminal stage, abandoning", "status", domain.StageName(stage))
	default:
		log.Info("Changed auction status", "status", domain.StageName(stage))
	}
	return outcome, nil
}

// PostAnnounce derives bids information from the authoritative bid list and
// stores it on the document. Only API-backed controllers do this.
func (c *LifecycleController) PostAnnounce(ctx context.Context) (Outcome, error) {
	if !c.cfg.UseAPI || c.debug {
		return OutcomeSkipped, nil
	}

	requestID := utils.NewRequestID()
	log := c.opLog("post_announce", requestID)

	var auction *domain.TenderData
	err := utils.Retry(ctx, c.cfg.Retry, isNotFound, func(ctx context.Context) error {
		var err error
		auction, err = c.client.FetchAuction(ctx, c.cfg.APIToken, requestID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrAuctionNotPublished
	}
	if err != nil {
		log.Error("Failed to fetch auction for announcement", "error", err)
		return "", fmt.Errorf("fetch auction: %w", err)
	}

	active := lo.Filter(auction.Bids, func(bid domain.Bid, _ int) bool { return bid.IsActive() })

	outcome := OutcomeApplied
	_, err = c.mutate(ctx, log, requestID, domain.EventAnnounced, func(current *domain.AuctionDocument) (*domain.AuctionDocument, error) {
		if current == nil {
			outcome = OutcomeNotFound
			return nil, nil
		}
		outcome = OutcomeApplied

		// Ordinals already published with the document must not move.
		c.mapper.Seed(current.BidderMapping)
		mapping := c.mapper.Assign(activeBidders(active))
		current.BidderMapping = mapping
		current.BidsInformation = bidsInformation(active, mapping)
		return current, nil
	})
	if err != nil {
		log.Error("Failed to save announced auction", "error", err)
		return "", err
	}

	log.Info("Auction announced", "bids", len(active), "outcome", outcome)
	return outcome, nil
}

func bidsInformation(bids []domain.Bid, mapping map[string]int) []domain.BidInformation {
	return lo.Map(bids, func(bid domain.Bid, _ int) domain.BidInformation {
		return domain.BidInformation{
			BidderID:      bid.ID,
			BidderOrdinal: mapping[bid.ID],
			Date:          bid.Date,
			Owner:         bid.Owner,
			Value:         bid.Value,
			Tenderers:     bid.Tenderers,
		}
	})
}
