package domain

import (
	"context"
	"time"
)

// Tender resource API
type TenderDataClient interface {
	FetchTender(ctx context.Context, requestID string) (*TenderData, error)
	FetchAuction(ctx context.Context, token, requestID string) (*TenderData, error)
}

// DocumentStore persists auction documents with revision based optimistic
// concurrency. Put fails with ErrStoreConflict when doc.Revision is stale.
type DocumentStore interface {
	Get(ctx context.Context, auctionID string) (*AuctionDocument, error)
	Put(ctx context.Context, doc *AuctionDocument) (string, error)
}

// Scheduler interface
type StageScheduler interface {
	Schedule(ctx context.Context, jobID string, jobType JobType, at time.Time, fn func(ctx context.Context) error) error
	Cancel(ctx context.Context, jobID string) error
	CancelAll(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
}

// JobJournal keeps a durable trail of scheduled stage jobs.
type JobJournal interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CancelJobsForAuction(ctx context.Context, auctionID string) error
	GetJobs(ctx context.Context, auctionID string) ([]*ScheduledJob, error)
}

// StagePlanner computes the stage schedule of an auction.
type StagePlanner interface {
	Plan(startDate time.Time) []Stage
}

// RoundHandler runs bidding-round logic on stage switches. Results returned
// from Finish are appended to the document when the auction ends.
type RoundHandler interface {
	OnStage(ctx context.Context, doc *AuctionDocument, stage Stage) error
	Finish(ctx context.Context, doc *AuctionDocument) ([]Result, error)
}

// Event interfaces
type DocumentEventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event *DocumentEvent) error
}

// Lock held by the single worker of an auction.
type WorkerLock interface {
	Acquire(ctx context.Context, auctionID, instanceID string) (bool, error)
	Release(ctx context.Context, auctionID, instanceID string) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	ClientID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(clientID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(clientID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
