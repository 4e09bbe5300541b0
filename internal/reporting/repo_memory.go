package reporting

import (
	"context"
	"sort"
	"sync"
	"time"

	"coincall-platform/internal/calls"
	"coincall-platform/internal/wallet"
)

// MemoryRepo serves both sources from slices. For tests and local development.
type MemoryRepo struct {
	mu sync.Mutex

	Transactions []calls.Transaction
	Ledgers      []wallet.WalletLedger
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Between(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Transaction, 0)
	for _, tx := range r.Transactions {
		if !tx.Participants.Involves(userID) {
			continue
		}
		if tx.Timestamp.Before(from) || !tx.Timestamp.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, userID string, from, to time.Time, limit int) ([]wallet.WalletLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.WalletLedger, 0)
	for _, l := range r.Ledgers {
		if l.UserID != userID {
			continue
		}
		if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
