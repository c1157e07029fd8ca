package domain

import "errors"

var (
	// ErrNotFound is returned by the resource API client on HTTP 404.
	ErrNotFound = errors.New("resource not found")
	// ErrTenderNotFound means the tender was removed. Fatal to the worker.
	ErrTenderNotFound = errors.New("tender not found")
	// ErrAuctionNotPublished means the auction sub-resource is missing while
	// the tender exists. Retry later.
	ErrAuctionNotPublished = errors.New("auction not published yet")
	ErrExternalCall        = errors.New("external call failed")

	ErrDocumentNotFound         = errors.New("auction document not found")
	ErrStoreConflict            = errors.New("auction document revision conflict")
	ErrConflictRetriesExhausted = errors.New("auction document conflict retries exhausted")

	ErrAuctionTerminal = errors.New("auction is in a terminal stage")
	ErrNoAuctionData   = errors.New("no auction data: api disabled and none injected")
	ErrNoStages        = errors.New("auction document has no stages")
	ErrJobNotFound     = errors.New("scheduled job not found")
)
