package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"coincall-platform/internal/calls"
)

// MemoryRepo is an in-memory TransactionRepo useful for tests and local runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu  sync.Mutex
	txs map[string]calls.Transaction
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{txs: make(map[string]calls.Transaction)}
}

func (r *MemoryRepo) Insert(ctx context.Context, tx calls.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txs[tx.TransactionID]; ok {
		return false, nil
	}
	r.txs[tx.TransactionID] = tx
	return true, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	return r.filter(limit, func(tx calls.Transaction) bool {
		return tx.Participants.Involves(userID)
	}), nil
}

func (r *MemoryRepo) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error) {
	return r.filter(limit, func(tx calls.Transaction) bool {
		return tx.Participants.Involves(userID) && tx.Participants.Peer(userID) == peerID
	}), nil
}

func (r *MemoryRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error) {
	return r.filter(0, func(tx calls.Transaction) bool {
		return tx.Participants.Involves(userID) && !tx.Timestamp.Before(from) && tx.Timestamp.Before(to)
	}), nil
}

// filter returns matches newest first. limit <= 0 means no limit.
func (r *MemoryRepo) filter(limit int, keep func(calls.Transaction) bool) []calls.Transaction {
	r.mu.Lock()
	var out []calls.Transaction
	for _, tx := range r.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TransactionID > out[j].TransactionID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
