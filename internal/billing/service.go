// Package billing records call transactions posted by the billing backend.
//
// Each transaction is claimed across instances, deduplicated in-process, then
// fanned out to the realtime bus, the call_transactions table and the coin wallet.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coincall-platform/internal/callevent"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/metrics"
	"coincall-platform/internal/wallet"
	"coincall-platform/pkg/logger"
)

var (
	ErrInvalidTransaction = errors.New("billing: transaction requires transactionId")
	ErrInvalidQuery       = errors.New("billing: invalid query")
)

// ClaimStore takes a transaction id for this instance. Claims expire on their own.
type ClaimStore interface {
	Claim(ctx context.Context, transactionID string) (bool, error)
	Release(ctx context.Context, transactionID string) error
}

// TransactionRepo persists normalized transactions. Insert is idempotent by transaction id.
type TransactionRepo interface {
	Insert(ctx context.Context, tx calls.Transaction) (inserted bool, err error)
	ListByUser(ctx context.Context, userID string, limit int) ([]calls.Transaction, error)
	ListConversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error)
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error)
}

type WalletPoster interface {
	ApplyCallTransaction(ctx context.Context, tx calls.Transaction) (wallet.CallPosting, error)
}

// Publisher delivers a transaction to connected clients of both participants.
type Publisher interface {
	Publish(ctx context.Context, tx calls.Transaction) error
}

// Auditor records transactions that break the share invariant.
type Auditor interface {
	LogShareAnomaly(ctx context.Context, transactionID, callID, payerUserID, metadata string) error
}

// Estimator compares billed coins with the rate card.
type Estimator interface {
	Deviation(tx calls.Transaction) (delta int64, ok bool)
}

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
)

type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Transaction *calls.Transaction  `json:"transaction,omitempty"`
	Posting     *wallet.CallPosting `json:"posting,omitempty"`
}

type Deps struct {
	Claims    ClaimStore
	Repo      TransactionRepo
	Wallet    WalletPoster
	Publisher Publisher
	Auditor   Auditor
	Estimator Estimator

	// Seen is shared by every Record call of this process.
	Seen  calls.SeenSet
	Clock func() time.Time
}

type Service struct {
	claims    ClaimStore
	repo      TransactionRepo
	wallet    WalletPoster
	publisher Publisher
	auditor   Auditor
	estimator Estimator

	seen     calls.SeenSet
	ingestor *calls.Ingestor
}

func NewService(d Deps) *Service {
	seen := d.Seen
	if seen == nil {
		seen = calls.NewMemorySeenSet()
	}
	return &Service{
		claims:    d.Claims,
		repo:      d.Repo,
		wallet:    d.Wallet,
		publisher: d.Publisher,
		auditor:   d.Auditor,
		estimator: d.Estimator,
		seen:      seen,
		ingestor:  calls.NewIngestorWithClock(d.Clock),
	}
}

// Record ingests one delivery of a transaction.
//
// A duplicate delivery returns OutcomeDuplicate and no error. When any sink
// fails, the id is released both locally and in the claim store and the joined
// sink errors are returned, so the sender's retry is processed again.
func (s *Service) Record(ctx context.Context, raw *calls.RawTransaction) (Result, error) {
	log := logger.From(ctx)

	if raw == nil || raw.TransactionID == "" {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, ErrInvalidTransaction
	}
	id := raw.TransactionID
	log = log.With("transaction_id", id)

	if s.claims != nil {
		ok, err := s.claims.Claim(ctx, id)
		if err != nil {
			metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return Result{}, fmt.Errorf("claim %s: %w", id, err)
		}
		if !ok {
			metrics.IngestTotal.WithLabelValues(metrics.OutcomeClaimed).Inc()
			log.Debug("transaction already claimed")
			return Result{Outcome: OutcomeDuplicate}, nil
		}
	}

	var (
		sinkErrs []error
		posting  *wallet.CallPosting
	)
	session := calls.Session{
		Seen: s.seen,
		OnChatUpdate: func(tx *calls.Transaction) {
			if s.publisher == nil {
				return
			}
			if err := s.publisher.Publish(ctx, *tx); err != nil {
				metrics.SinkErrors.WithLabelValues("chat").Inc()
				sinkErrs = append(sinkErrs, fmt.Errorf("publish: %w", err))
			}
		},
		OnCallsUpdate: func(tx *calls.Transaction) {
			if s.repo == nil {
				return
			}
			if _, err := s.repo.Insert(ctx, *tx); err != nil {
				metrics.SinkErrors.WithLabelValues("calls").Inc()
				sinkErrs = append(sinkErrs, fmt.Errorf("persist: %w", err))
			}
		},
		OnWalletUpdate: func(tx *calls.Transaction) {
			if s.wallet == nil {
				return
			}
			p, err := s.wallet.ApplyCallTransaction(ctx, *tx)
			if err != nil {
				metrics.SinkErrors.WithLabelValues("wallet").Inc()
				sinkErrs = append(sinkErrs, fmt.Errorf("wallet: %w", err))
				return
			}
			posting = &p
		},
	}

	tx := s.ingestor.Ingest(raw, session)
	if tx == nil {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		log.Debug("transaction already seen")
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	if len(sinkErrs) > 0 {
		s.seen.Forget(id)
		if s.claims != nil {
			if err := s.claims.Release(ctx, id); err != nil {
				log.Warn("claim release failed", "err", err)
			}
		}
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		err := errors.Join(sinkErrs...)
		log.Error("transaction sinks failed", "err", err)
		return Result{}, err
	}

	s.checkShares(ctx, log, *tx)
	s.checkDeviation(log, *tx)

	metrics.IngestTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
	log.Info("transaction recorded",
		"call_id", tx.CallID,
		"call_type", tx.CallType,
		"status", tx.Status,
		"billed_coins", tx.BilledCoins,
	)
	return Result{Outcome: OutcomeAccepted, Transaction: tx, Posting: posting}, nil
}

// checkShares flags receiverShare + adminShare > billedCoins. The transaction is
// kept as sent.
func (s *Service) checkShares(ctx context.Context, log *slog.Logger, tx calls.Transaction) {
	if !tx.SharesExceedBilled() {
		return
	}
	metrics.ShareAnomalies.Inc()
	log.Warn("shares exceed billed coins",
		"billed_coins", tx.BilledCoins,
		"receiver_share", tx.ReceiverShare,
		"admin_share", tx.AdminShare,
	)
	if s.auditor == nil {
		return
	}
	meta, _ := json.Marshal(map[string]int64{
		"billedCoins":   tx.BilledCoins,
		"receiverShare": tx.ReceiverShare,
		"adminShare":    tx.AdminShare,
	})
	if err := s.auditor.LogShareAnomaly(ctx, tx.TransactionID, tx.CallID, tx.Payer(), string(meta)); err != nil {
		log.Warn("audit share anomaly failed", "err", err)
	}
}

func (s *Service) checkDeviation(log *slog.Logger, tx calls.Transaction) {
	if s.estimator == nil || callevent.Classify(tx.Status) != callevent.StateCompleted {
		return
	}
	delta, ok := s.estimator.Deviation(tx)
	if !ok || delta == 0 {
		return
	}
	metrics.BilledDeviations.WithLabelValues(string(tx.CallType)).Inc()
	log.Warn("billed coins differ from rate card",
		"delta_coins", delta,
		"duration_seconds", tx.DurationSeconds,
	)
}

// History lists the user's most recent transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidQuery
	}
	return s.repo.ListByUser(ctx, userID, clampLimit(limit))
}

// Conversation lists transactions between userID and peerID, newest first.
func (s *Service) Conversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error) {
	if userID == "" || peerID == "" || userID == peerID {
		return nil, ErrInvalidQuery
	}
	return s.repo.ListConversation(ctx, userID, peerID, clampLimit(limit))
}

// Between lists the user's transactions that occurred in [from, to).
func (s *Service) Between(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error) {
	if userID == "" || !to.After(from) {
		return nil, ErrInvalidQuery
	}
	return s.repo.ListBetween(ctx, userID, from, to)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
