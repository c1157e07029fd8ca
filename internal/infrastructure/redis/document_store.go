package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"auction-worker/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// putScript writes the document only when the stored revision equals the
// one the caller read. A missing key has the empty revision.
const putScript = `
local current = redis.call('HGET', KEYS[1], 'rev')
if (current or '') ~= ARGV[1] then
    return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[2], 'doc', ARGV[3])
return 1
`

// DocumentStore keeps auction documents in a hash per auction with "rev" and
// "doc" fields.
type DocumentStore struct {
	client      *redis.Client
	prefix      string
	newRevision func(previous string) string
}

type DocumentStoreOption func(*DocumentStore)

func WithKeyPrefix(prefix string) DocumentStoreOption {
	return func(s *DocumentStore) {
		s.prefix = prefix
	}
}

// WithRevisionFunc replaces the revision generator. Tests use it.
func WithRevisionFunc(fn func(previous string) string) DocumentStoreOption {
	return func(s *DocumentStore) {
		s.newRevision = fn
	}
}

func NewDocumentStore(client *redis.Client, opts ...DocumentStoreOption) *DocumentStore {
	s := &DocumentStore{
		client:      client,
		prefix:      "auction_document:",
		newRevision: NextRevision,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRevision produces "<generation>-<hex>" revisions.
func NextRevision(previous string) string {
	generation := 0
	if head, _, found := strings.Cut(previous, "-"); found {
		generation, _ = strconv.Atoi(head)
	}
	return fmt.Sprintf("%d-%s", generation+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (s *DocumentStore) key(auctionID string) string {
	return s.prefix + auctionID
}

func (s *DocumentStore) Get(ctx context.Context, auctionID string) (*domain.AuctionDocument, error) {
	const op = "redis.DocumentStore.Get"

	result, err := s.client.HMGet(ctx, s.key(auctionID), "rev", "doc").Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(result) < 2 || result[1] == nil {
		return nil, domain.ErrDocumentNotFound
	}

	body, ok := result[1].(string)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected document type %T", op, result[1])
	}
	var doc domain.AuctionDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("%s: decode document: %w", op, err)
	}
	if rev, ok := result[0].(string); ok {
		doc.Revision = rev
	}
	return &doc, nil
}

func (s *DocumentStore) Put(ctx context.Context, doc *domain.AuctionDocument) (string, error) {
	const op = "redis.DocumentStore.Put"

	revision := s.newRevision(doc.Revision)
	stored := *doc
	stored.Revision = ""
	body, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("%s: encode document: %w", op, err)
	}

	written, err := s.client.Eval(ctx, putScript, []string{s.key(doc.ID)},
		doc.Revision, revision, string(body)).Int64()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if written == 0 {
		return "", domain.ErrStoreConflict
	}
	return revision, nil
}
