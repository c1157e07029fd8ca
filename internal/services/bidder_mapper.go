package services

import (
	"sync"

	"auction-worker/internal/domain"

	"github.com/samber/lo"
)

// BidderMapper hands out anonymized ordinals to bidders in first-seen order.
// An assigned ordinal never changes.
type BidderMapper struct {
	mu      sync.Mutex
	mapping map[string]int
	next    int
}

func NewBidderMapper() *BidderMapper {
	return &BidderMapper{
		mapping: make(map[string]int),
		next:    1,
	}
}

// Seed restores ordinals persisted by a previous run. Existing entries win.
func (m *BidderMapper) Seed(mapping map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for bidderID, ordinal := range mapping {
		if ordinal <= 0 {
			continue
		}
		if _, exists := m.mapping[bidderID]; exists {
			continue
		}
		m.mapping[bidderID] = ordinal
		if ordinal >= m.next {
			m.next = ordinal + 1
		}
	}
}

// Assign extends the mapping with bidders not seen before and returns a copy.
func (m *BidderMapper) Assign(bids []domain.BidSnapshot) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bid := range bids {
		if _, exists := m.mapping[bid.BidderID]; exists {
			continue
		}
		m.mapping[bid.BidderID] = m.next
		m.next++
	}
	return lo.Assign(m.mapping)
}

func (m *BidderMapper) Ordinal(bidderID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordinal, ok := m.mapping[bidderID]
	return ordinal, ok
}

// activeBidders keeps bids with status "active" in submission order.
func activeBidders(bids []domain.Bid) []domain.BidSnapshot {
	return lo.FilterMap(bids, func(bid domain.Bid, _ int) (domain.BidSnapshot, bool) {
		return domain.BidSnapshot{
			BidderID:            bid.ID,
			SubmissionTimestamp: bid.Date,
			OwnerReference:      bid.Owner,
		}, bid.IsActive()
	})
}
