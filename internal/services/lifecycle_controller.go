package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-worker/internal/domain"
	"auction-worker/pkg/logger"
	"auction-worker/pkg/utils"

	"golang.org/x/sync/semaphore"
)

const auctionType = "kadastral"

// Outcome reports what an externally triggered operation did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeSkipped   Outcome = "skipped"
)

type ControllerConfig struct {
	TenderID        string
	APIVersion      string
	APIToken        string
	UseAPI          bool
	SandboxMode     bool
	Retry           utils.RetryPolicy
	ConflictRetries int

	Planner            domain.StagePlanner
	FastForwardPlanner domain.StagePlanner

	// AuctionData is an injected {"data": {...}} snapshot. When set the
	// controller runs in test mode and never calls the resource API.
	AuctionData []byte
}

// LifecycleController drives one auction document from preparation to a
// terminal stage.
type LifecycleController struct {
	cfg       ControllerConfig
	auctionID string
	debug     bool

	store     domain.DocumentStore
	client    domain.TenderDataClient
	scheduler domain.StageScheduler
	publisher domain.DocumentEventPublisher
	rounds    domain.RoundHandler
	clock     domain.Clock
	log       logger.Logger

	gate   *semaphore.Weighted
	done   *completionSignal
	mapper *BidderMapper

	mu          sync.Mutex
	auctionData *domain.TenderData
	rawData     json.RawMessage
	bidders     []domain.BidSnapshot
	mapping     map[string]int
	startDate   time.Time
	document    *domain.AuctionDocument
}

func NewLifecycleController(
	cfg ControllerConfig,
	store domain.DocumentStore,
	client domain.TenderDataClient,
	scheduler domain.StageScheduler,
	publisher domain.DocumentEventPublisher,
	log logger.Logger,
) (*LifecycleController, error) {
	if cfg.ConflictRetries < 1 {
		cfg.ConflictRetries = 1
	}
	if cfg.UseAPI && client == nil && len(cfg.AuctionData) == 0 {
		return nil, errors.New("tender data client required when use_api is set")
	}

	c := &LifecycleController{
		cfg:       cfg,
		auctionID: cfg.TenderID,
		store:     store,
		client:    client,
		scheduler: scheduler,
		publisher: publisher,
		rounds:    NoopRoundHandler{},
		clock:     domain.SystemClock{},
		log:       log.With("auction_id", cfg.TenderID),
		gate:      semaphore.NewWeighted(1),
		done:      newCompletionSignal(),
		mapper:    NewBidderMapper(),
	}

	if len(cfg.AuctionData) > 0 {
		var envelope domain.TenderEnvelope
		if err := json.Unmarshal(cfg.AuctionData, &envelope); err != nil {
			return nil, fmt.Errorf("parse injected auction data: %w", err)
		}
		c.debug = true
		c.auctionData = &envelope.Data
		c.rawData = append(json.RawMessage(nil), cfg.AuctionData...)
	}

	return c, nil
}

func (c *LifecycleController) SetRoundHandler(rounds domain.RoundHandler) {
	c.rounds = rounds
}

func (c *LifecycleController) SetClock(clock domain.Clock) {
	c.clock = clock
}

func (c *LifecycleController) AuctionID() string {
	return c.auctionID
}

// Done is closed once the auction reached its natural end or the tender was
// found to be permanently gone.
func (c *LifecycleController) Done() <-chan struct{} {
	return c.done.Done()
}

func (c *LifecycleController) opLog(operation, requestID string) logger.Logger {
	return c.log.With("request_id", requestID, "operation", operation)
}

// Prepare builds a fresh auction document from the tender snapshot and
// persists it over any previous revision.
func (c *LifecycleController) Prepare(ctx context.Context) error {
	requestID := utils.NewRequestID()
	log := c.opLog("prepare", requestID)

	existing, err := c.store.Get(ctx, c.auctionID)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		existing = nil
	case err != nil:
		return fmt.Errorf("prepare: load document: %w", err)
	}
	if existing != nil {
		if existing.IsTerminal() {
			log.Warn("Auction already finished, refusing to prepare", "current_stage", existing.CurrentStage)
			return domain.ErrAuctionTerminal
		}
		c.mapper.Seed(existing.BidderMapping)
	}

	if err := c.synchronize(ctx, true, requestID, log); err != nil {
		if errors.Is(err, domain.ErrTenderNotFound) {
			log.Error("Auction not exists", "error", err)
			c.done.Raise()
		}
		return err
	}

	planner := c.cfg.Planner
	if c.cfg.SandboxMode {
		planner = c.cfg.FastForwardPlanner
	}
	if planner == nil {
		return errors.New("prepare: no stage planner configured")
	}

	_, err = c.mutate(ctx, log, requestID, domain.EventPrepared, func(current *domain.AuctionDocument) (*domain.AuctionDocument, error) {
		if current != nil && current.IsTerminal() {
			return nil, domain.ErrAuctionTerminal
		}
		doc := c.buildDocument()
		doc.Stages = planner.Plan(doc.StartDate.UTC())
		return doc, nil
	})
	if err != nil {
		log.Error("Failed to save prepared auction document", "error", err)
		return err
	}

	log.Info("Auction document prepared", "sandbox", c.cfg.SandboxMode, "test_mode", c.debug)
	return nil
}

func (c *LifecycleController) buildDocument() *domain.AuctionDocument {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.auctionData
	procurementMethodType := data.ProcurementMethodType
	if procurementMethodType == "" {
		procurementMethodType = "default"
	}
	startDate := c.startDate

	doc := &domain.AuctionDocument{
		ID:                    c.auctionID,
		AuctionID:             data.AuctionID,
		ProcurementMethodType: procurementMethodType,
		TendersAPIVersion:     c.cfg.APIVersion,
		AuctionType:           auctionType,
		CurrentStage:          domain.StageNew,
		CurrentPhase:          "",
		Stages:                []domain.Stage{},
		Results:               []domain.Result{},
		BidderMapping:         c.mapping,
		ProcuringEntity:       data.ProcuringEntity,
		Items:                 data.Items,
		Value:                 data.Value,
		InitialValue:          data.ValueAmount(),
		Localized:             localizedFields(data),
		StartDate:             &startDate,
	}
	if c.debug {
		doc.Mode = domain.ModeTest
		doc.TestAuctionData = append(json.RawMessage(nil), c.rawData...)
	}
	return doc
}

func localizedFields(data *domain.TenderData) map[string]string {
	fields := make(map[string]string)
	for _, key := range domain.MultilingualFields {
		fields[key] = data.Localized[key]
		for _, lang := range domain.AdditionalLanguages {
			langKey := key + "_" + lang
			if text, ok := data.Localized[langKey]; ok {
				fields[langKey] = text
			}
		}
	}
	return fields
}

// Synchronize refreshes the tender snapshot, the active bidders, their
// mapping and the start date.
func (c *LifecycleController) Synchronize(ctx context.Context, prepare bool) error {
	requestID := utils.NewRequestID()
	return c.synchronize(ctx, prepare, requestID, c.opLog("synchronize", requestID))
}

func (c *LifecycleController) synchronize(ctx context.Context, prepare bool, requestID string, log logger.Logger) error {
	if c.cfg.UseAPI && !c.debug {
		data, err := c.fetchAuctionData(ctx, prepare, requestID, log)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.auctionData = data
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.auctionData == nil {
		return domain.ErrNoAuctionData
	}

	startDate, err := c.auctionData.StartDate()
	if err != nil {
		return fmt.Errorf("parse auction start date: %w", err)
	}
	c.startDate = startDate
	c.bidders = activeBidders(c.auctionData.Bids)
	c.mapping = c.mapper.Assign(c.bidders)

	log.Debug("Auction info synchronized", "bidders", len(c.bidders), "start_date", startDate)
	return nil
}

func (c *LifecycleController) fetchAuctionData(ctx context.Context, prepare bool, requestID string, log logger.Logger) (*domain.TenderData, error) {
	data := &domain.TenderData{}
	if prepare {
		tender, err := c.fetchTender(ctx, requestID)
		if err != nil {
			return nil, err
		}
		data = tender
	} else {
		c.mu.Lock()
		if c.auctionData != nil {
			data = c.auctionData.Clone()
		}
		c.mu.Unlock()
	}

	var auction *domain.TenderData
	err := utils.Retry(ctx, c.cfg.Retry, isNotFound, func(ctx context.Context) error {
		var err error
		auction, err = c.client.FetchAuction(ctx, c.cfg.APIToken, requestID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		if !prepare {
			// Tell a removed tender apart from an unpublished auction.
			if _, tenderErr := c.fetchTender(ctx, requestID); tenderErr != nil {
				return nil, tenderErr
			}
		}
		log.Warn("Auction sub-resource not published yet")
		return nil, domain.ErrAuctionNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("fetch auction: %w", err)
	}

	data.Merge(auction)
	return data, nil
}

func (c *LifecycleController) fetchTender(ctx context.Context, requestID string) (*domain.TenderData, error) {
	var tender *domain.TenderData
	err := utils.Retry(ctx, c.cfg.Retry, isNotFound, func(ctx context.Context) error {
		var err error
		tender, err = c.client.FetchTender(ctx, requestID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTenderNotFound, c.auctionID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch tender: %w", err)
	}
	return tender, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// Schedule starts the owned scheduler and registers one job per stage not
// reached yet.
func (c *LifecycleController) Schedule(ctx context.Context) error {
	doc := c.Document()
	if doc == nil {
		var err error
		if doc, err = c.store.Get(ctx, c.auctionID); err != nil {
			return fmt.Errorf("schedule: load document: %w", err)
		}
	}
	if doc.IsTerminal() {
		return domain.ErrAuctionTerminal
	}
	if len(doc.Stages) == 0 {
		return domain.ErrNoStages
	}

	if err := c.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	last := len(doc.Stages) - 1
	for i, stage := range doc.Stages {
		if i <= doc.CurrentStage {
			continue
		}

		index := i
		jobType := domain.JobSwitchStage
		fn := func(ctx context.Context) error { return c.SwitchToStage(ctx, index) }
		switch {
		case i == last:
			jobType = domain.JobEndAuction
			fn = c.EndAuction
		case i == 0:
			jobType = domain.JobStartAuction
			fn = c.StartAuction
		}

		if err := c.scheduler.Schedule(ctx, c.jobID(i), jobType, stage.Start, fn); err != nil {
			return fmt.Errorf("schedule stage %d: %w", i, err)
		}
	}

	c.log.Info("Auction scheduled", "stages", len(doc.Stages), "start", doc.Stages[0].Start)
	return nil
}

func (c *LifecycleController) jobID(stage int) string {
	return fmt.Sprintf("%s:stage:%d", c.auctionID, stage)
}

// Wait blocks until the completion signal is raised or ctx is done.
func (c *LifecycleController) Wait(ctx context.Context) error {
	select {
	case <-c.done.Done():
		c.log.Info("Stop auction worker")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owned scheduler.
func (c *LifecycleController) Close() error {
	return c.scheduler.Stop()
}

// Document returns a copy of the last document this controller read or wrote.
func (c *LifecycleController) Document() *domain.AuctionDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.document.Clone()
}

// LoadDocument reads the durable document.
func (c *LifecycleController) LoadDocument(ctx context.Context) (*domain.AuctionDocument, error) {
	doc, err := c.store.Get(ctx, c.auctionID)
	if err != nil {
		return nil, err
	}
	c.setDocument(doc)
	return doc.Clone(), nil
}

func (c *LifecycleController) setDocument(doc *domain.AuctionDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.document = doc.Clone()
}
