// Package reporting aggregates a user's calls and coin movements over a time range.
package reporting

import (
	"context"
	"errors"
	"strings"
	"time"

	"coincall-platform/internal/callevent"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/wallet"
)

var (
	ErrInvalidRequest = errors.New("reporting: invalid request")
	ErrNotConfigured  = errors.New("reporting: source not configured")
)

// maxLedgerRows is the most ledger entries one spend summary reads.
const maxLedgerRows = 500

// TransactionSource lists a user's call transactions in [from, to).
type TransactionSource interface {
	Between(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error)
}

// LedgerSource lists a user's wallet ledger entries in [from, to), newest first.
type LedgerSource interface {
	ListLedger(ctx context.Context, userID string, from, to time.Time, limit int) ([]wallet.WalletLedger, error)
}

type Service struct {
	txs    TransactionSource
	ledger LedgerSource
}

func NewService(txs TransactionSource, ledger LedgerSource) *Service {
	return &Service{txs: txs, ledger: ledger}
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.txs == nil {
		return CallsSummary{}, ErrNotConfigured
	}

	rows, err := s.txs.Between(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	completedDuration := 0
	for _, tx := range rows {
		if !tx.Participants.Involves(req.UserID) {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += tx.DurationSeconds

		if tx.Participants.InitiatorID == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		if tx.CallType == calls.CallTypeVideo {
			out.VideoCalls++
		} else {
			out.VoiceCalls++
		}

		switch callevent.Classify(tx.Status) {
		case callevent.StateCompleted:
			out.CompletedCalls++
			completedDuration += tx.DurationSeconds
		case callevent.StateMissed:
			out.MissedCalls++
		case callevent.StateCancelled:
			out.CancelledCalls++
		case callevent.StateFailed:
			out.FailedCalls++
		default:
			out.PendingCalls++
		}

		// Same rule and attribution as the wallet postings.
		if !callevent.MovesCoins(tx) {
			continue
		}
		payer := tx.Payer()
		if payer == "" {
			payer = tx.Participants.InitiatorID
		}
		if payer == req.UserID {
			out.CoinsSpent += tx.BilledCoins
		} else {
			out.CoinsEarned += tx.ReceiverShare
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = completedDuration / out.CompletedCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.UserID == "" || !req.Range.valid() {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.ledger == nil {
		return SpendSummary{}, ErrNotConfigured
	}

	entries, err := s.ledger.ListLedger(ctx, req.UserID, req.Range.From, req.Range.To, maxLedgerRows)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{UserID: req.UserID, Range: req.Range, Entries: len(entries)}
	out.Truncated = len(entries) >= maxLedgerRows
	for _, l := range entries {
		if l.Coins > 0 {
			out.TotalCreditCoins += l.Coins
		} else {
			out.TotalDebitCoins += -l.Coins
		}

		switch {
		case l.ExternalRef == wallet.AdminManualCreditRef:
			out.AdminAdjustCoins += l.Coins
		case strings.HasPrefix(l.ExternalRef, wallet.CallRefPrefix):
			if l.Coins < 0 {
				out.CallDebitCoins += -l.Coins
			} else {
				out.CallCreditCoins += l.Coins
			}
		}
	}
	out.NetDeltaCoins = out.TotalCreditCoins - out.TotalDebitCoins
	return out, nil
}
