package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	releaseScript = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `
	renewScript = `
            if redis.call("GET", KEYS[1]) == ARGV[1] then
                return redis.call("EXPIRE", KEYS[1], ARGV[2])
            else
                return 0
            end
        `
)

// WorkerLock makes sure a single worker drives an auction. The lock expires
// unless its holder keeps renewing it.
type WorkerLock struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewWorkerLock(client *redis.Client, ttl time.Duration) *WorkerLock {
	return &WorkerLock{
		client:  client,
		ttl:     ttl,
		cancels: make(map[string]context.CancelFunc),
	}
}

func lockKey(auctionID string) string {
	return "auction_worker:" + auctionID
}

func (r *WorkerLock) Acquire(ctx context.Context, auctionID, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, lockKey(auctionID), instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		// Start heartbeat to keep the lock
		renewCtx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.cancels[auctionID] = cancel
		r.mu.Unlock()
		go r.maintain(renewCtx, auctionID, instanceID)
	}

	return result, nil
}

func (r *WorkerLock) Release(ctx context.Context, auctionID, instanceID string) error {
	r.mu.Lock()
	if cancel, ok := r.cancels[auctionID]; ok {
		cancel()
		delete(r.cancels, auctionID)
	}
	r.mu.Unlock()

	return r.client.Eval(ctx, releaseScript, []string{lockKey(auctionID)}, instanceID).Err()
}

func (r *WorkerLock) maintain(ctx context.Context, auctionID, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := r.client.Eval(renewCtx, renewScript, []string{lockKey(auctionID)},
			instanceID, int(r.ttl.Seconds())).Int64()
		cancel()

		if err != nil || result == 0 {
			// Lost the lock, stop heartbeat
			return
		}
	}
}
