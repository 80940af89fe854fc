package webhook

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// DefaultNonceTTL bounds how long a consumed nonce is remembered.
// It is longer than any retry schedule a webhook can be configured with in practice.
const DefaultNonceTTL = 24 * time.Hour

// NonceStore records consumed nonces.
type NonceStore interface {
	// MarkUsed records nonce and reports whether it was unseen.
	MarkUsed(ctx context.Context, nonce string) (bool, error)
}

const nonceShards = 32

// MemoryNonceStore keeps nonces in sharded maps with one mutex per shard.
type MemoryNonceStore struct {
	ttl    time.Duration
	now    func() time.Time
	shards [nonceShards]nonceShard
}

type nonceShard struct {
	mu     sync.Mutex
	expiry map[string]time.Time
}

// NewMemoryNonceStore returns a store that forgets nonces after ttl (0 = DefaultNonceTTL).
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	s := &MemoryNonceStore{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i].expiry = make(map[string]time.Time)
	}
	return s
}

func (s *MemoryNonceStore) shard(nonce string) *nonceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(nonce))
	return &s.shards[h.Sum32()%nonceShards]
}

// MarkUsed implements NonceStore.
func (s *MemoryNonceStore) MarkUsed(_ context.Context, nonce string) (bool, error) {
	now := s.now()
	sh := s.shard(nonce)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if exp, ok := sh.expiry[nonce]; ok && exp.After(now) {
		return false, nil
	}
	sh.expiry[nonce] = now.Add(s.ttl)
	return true, nil
}

// Len returns the number of remembered nonces.
func (s *MemoryNonceStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.expiry)
		sh.mu.Unlock()
	}
	return n
}

// Prune forgets expired nonces and returns how many were dropped.
func (s *MemoryNonceStore) Prune() int {
	now := s.now()
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, exp := range sh.expiry {
			if !exp.After(now) {
				delete(sh.expiry, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Run prunes every interval until ctx is done.
func (s *MemoryNonceStore) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Prune()
		}
	}
}
