// Package memory provides an in-process DocumentStore with the same revision
// semantics as the Redis store. Used by tests and --in-memory dry runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"auction-worker/internal/domain"
)

var _ domain.DocumentStore = (*DocumentStore)(nil)

type record struct {
	revision string
	body     []byte
}

type DocumentStore struct {
	mu         sync.Mutex
	records    map[string]record
	generation int
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{records: make(map[string]record)}
}

func (s *DocumentStore) Get(ctx context.Context, auctionID string) (*domain.AuctionDocument, error) {
	s.mu.Lock()
	rec, ok := s.records[auctionID]
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	var doc domain.AuctionDocument
	if err := json.Unmarshal(rec.body, &doc); err != nil {
		return nil, err
	}
	doc.Revision = rec.revision
	return &doc, nil
}

func (s *DocumentStore) Put(ctx context.Context, doc *domain.AuctionDocument) (string, error) {
	stored := *doc
	stored.Revision = ""
	body, err := json.Marshal(&stored)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[doc.ID].revision != doc.Revision {
		return "", domain.ErrStoreConflict
	}
	s.generation++
	revision := fmt.Sprintf("%d-mem", s.generation)
	s.records[doc.ID] = record{revision: revision, body: body}
	return revision, nil
}

// Revision returns the stored revision of auctionID, empty when missing.
func (s *DocumentStore) Revision(auctionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[auctionID].revision
}

func (s *DocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
