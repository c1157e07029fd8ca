package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-worker/internal/config"
	"auction-worker/internal/domain"
	"auction-worker/internal/infrastructure/memory"
	"auction-worker/pkg/logger"
	"auction-worker/pkg/utils"

	"github.com/stretchr/testify/require"
)

const testTenderID = "UA-11111"

const tenderBody = `{"data": {
	"id": "UA-11111",
	"auctionID": "UA-2026-10-15-000001",
	"procurementMethodType": "belowThreshold",
	"title": "Road repair",
	"title_en": "Road repair EN",
	"description": "Asphalt works",
	"procuringEntity": {"name": "City council"},
	"value": {"amount": 1500.5, "currency": "UAH"},
	"auctionPeriod": {"startDate": "2026-11-02T09:00:00+02:00"}
}}`

var testStages = config.StagesConfig{
	PauseDuration: 5 * time.Minute,
	RoundDuration: 2 * time.Minute,
	Rounds:        3,
	FastForward: config.FastForwardConfig{
		PauseDuration: 10 * time.Second,
		RoundDuration: 5 * time.Second,
	},
}

func bid(id, status string) string {
	return fmt.Sprintf(`{"id": %q, "date": "2026-10-20T10:00:00Z", "owner": "broker", "status": %q, "value": {"amount": 1000}}`, id, status)
}

func auctionBody(bids ...string) string {
	return `{"data": {"bids": [` + strings.Join(bids, ",") + `]}}`
}

func decodeTender(body string) (*domain.TenderData, error) {
	var envelope domain.TenderEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// fakeTenderClient serves canned envelopes. An empty body answers 404.
type fakeTenderClient struct {
	mu              sync.Mutex
	tender          string
	auction         string
	auctionFailures int
	tenderCalls     int
	auctionCalls    int
	lastToken       string
}

func (f *fakeTenderClient) FetchTender(ctx context.Context, requestID string) (*domain.TenderData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tenderCalls++
	if f.tender == "" {
		return nil, fmt.Errorf("%w: tender", domain.ErrNotFound)
	}
	return decodeTender(f.tender)
}

func (f *fakeTenderClient) FetchAuction(ctx context.Context, token, requestID string) (*domain.TenderData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auctionCalls++
	f.lastToken = token
	if f.auctionFailures > 0 {
		f.auctionFailures--
		return nil, fmt.Errorf("%w: status 502", domain.ErrExternalCall)
	}
	if f.auction == "" {
		return nil, fmt.Errorf("%w: auction", domain.ErrNotFound)
	}
	return decodeTender(f.auction)
}

func (f *fakeTenderClient) set(tender, auction string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tender = tender
	f.auction = auction
}

type scheduledCall struct {
	jobType domain.JobType
	at      time.Time
	fn      func(ctx context.Context) error
}

type fakeScheduler struct {
	mu      sync.Mutex
	jobs    map[string]scheduledCall
	order   []string
	started bool
	stopped bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]scheduledCall)}
}

func (s *fakeScheduler) Schedule(ctx context.Context, jobID string, jobType domain.JobType, at time.Time, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = scheduledCall{jobType: jobType, at: at, fn: fn}
	s.order = append(s.order, jobID)
	return nil
}

func (s *fakeScheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *fakeScheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]scheduledCall)
	return nil
}

func (s *fakeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// fire runs the job the way the scheduler would.
func (s *fakeScheduler) fire(t *testing.T, jobID string) error {
	t.Helper()
	s.mu.Lock()
	call, ok := s.jobs[jobID]
	s.mu.Unlock()
	require.True(t, ok, "job %s not scheduled", jobID)
	return call.fn(context.Background())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.DocumentEvent
}

func (p *recordingPublisher) PublishDocumentEvent(ctx context.Context, event *domain.DocumentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.DocumentEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.DocumentEventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type harness struct {
	store      *memory.DocumentStore
	client     *fakeTenderClient
	scheduler  *fakeScheduler
	events     *recordingPublisher
	controller *LifecycleController
}

func testConfig() ControllerConfig {
	return ControllerConfig{
		TenderID:           testTenderID,
		APIVersion:         "2.5",
		APIToken:           "secret",
		UseAPI:             true,
		Retry:              utils.RetryPolicy{Attempts: 1},
		ConflictRetries:    3,
		Planner:            NewStagePlanner(testStages),
		FastForwardPlanner: NewFastForwardPlanner(testStages),
	}
}

func newHarness(t *testing.T, options ...func(*ControllerConfig)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, option := range options {
		option(&cfg)
	}

	h := &harness{
		store: memory.NewDocumentStore(),
		client: &fakeTenderClient{
			tender:  tenderBody,
			auction: auctionBody(bid("bidder-a", "active"), bid("bidder-b", "active")),
		},
		scheduler: newFakeScheduler(),
		events:    &recordingPublisher{},
	}
	h.controller = h.newController(t, cfg, h.store)
	return h
}

func (h *harness) newController(t *testing.T, cfg ControllerConfig, store domain.DocumentStore) *LifecycleController {
	t.Helper()
	controller, err := NewLifecycleController(cfg, store, h.client, h.scheduler, h.events, logger.NewNop())
	require.NoError(t, err)
	controller.SetClock(fixedClock{now: time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)})
	return controller
}

func (h *harness) document(t *testing.T) *domain.AuctionDocument {
	t.Helper()
	doc, err := h.store.Get(context.Background(), testTenderID)
	require.NoError(t, err)
	return doc
}

func (h *harness) prepare(t *testing.T) *domain.AuctionDocument {
	t.Helper()
	require.NoError(t, h.controller.Prepare(context.Background()))
	return h.document(t)
}

func raised(c *LifecycleController) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
