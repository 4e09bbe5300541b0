package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"coincall-platform/internal/calls"
	"coincall-platform/internal/wallet"
)

var now = time.Unix(1700000000, 0).UTC()

func dayRange() TimeRange {
	return TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func tx(id, initiator, receiver, status string, billed, share int64, dur int) calls.Transaction {
	return calls.Transaction{
		TransactionID:   id,
		CallType:        calls.CallTypeVoice,
		Participants:    calls.Participants{InitiatorID: initiator, ReceiverID: receiver},
		PayerUserID:     initiator,
		BilledCoins:     billed,
		ReceiverShare:   share,
		Status:          status,
		DurationSeconds: dur,
		Timestamp:       now,
	}
}

func TestReporting_CallsSummaryBucketsByDisplayState(t *testing.T) {
	repo := NewMemoryRepo()
	video := tx("t2", "alice", "u1", calls.StatusEnded, 40, 16, 30)
	video.CallType = calls.CallTypeVideo
	old := tx("t9", "u1", "bob", calls.StatusCompleted, 20, 8, 60)
	old.Timestamp = now.Add(-2 * time.Hour)
	repo.Transactions = []calls.Transaction{
		tx("t1", "u1", "bob", calls.StatusCompleted, 20, 8, 90),
		video,
		// Unsettled calls carry amounts but never count as spent or earned.
		tx("t3", "bob", "u1", calls.StatusMissed, 40, 16, 0),
		tx("t4", "u1", "bob", calls.StatusRejected, 0, 0, 0),
		tx("t5", "u1", "bob", calls.StatusFailedBilling, 40, 16, 0),
		tx("t6", "u1", "bob", "ringing", 0, 0, 0),
		tx("t7", "bob", "carol", calls.StatusCompleted, 20, 8, 60),
		old,
	}
	svc := NewService(repo, repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "u1", Range: dayRange()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 6 {
		t.Fatalf("expected 6 calls, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.MissedCalls != 1 || out.CancelledCalls != 1 || out.FailedCalls != 1 || out.PendingCalls != 1 {
		t.Fatalf("unexpected buckets: %+v", out)
	}
	if out.OutgoingCalls != 4 || out.IncomingCalls != 2 || out.VideoCalls != 1 {
		t.Fatalf("unexpected direction/type counts: %+v", out)
	}
	if out.TotalDurationSeconds != 120 || out.AverageDurationSeconds != 60 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.CoinsSpent != 20 || out.CoinsEarned != 16 {
		t.Fatalf("expected spent 20 earned 16, got %d/%d", out.CoinsSpent, out.CoinsEarned)
	}
}

func TestReporting_SpendSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Ledgers = []wallet.WalletLedger{
		{ID: "l1", UserID: "u1", Type: wallet.LedgerEntryTypeCredit, Coins: 1000, ExternalRef: "topup:1", CreatedAt: now},
		{ID: "l2", UserID: "u1", Type: wallet.LedgerEntryTypeDebit, Coins: -200, ExternalRef: "call:c1", CreatedAt: now},
		{ID: "l3", UserID: "u1", Type: wallet.LedgerEntryTypeDebit, Coins: -50, ExternalRef: "call:c2", CreatedAt: now},
		{ID: "l4", UserID: "u1", Type: wallet.LedgerEntryTypeCredit, Coins: 25, ExternalRef: wallet.AdminManualCreditRef, CreatedAt: now},
		{ID: "l5", UserID: "u1", Type: wallet.LedgerEntryTypeCredit, Coins: 8, ExternalRef: "call:c3", CreatedAt: now},
		{ID: "l6", UserID: "u2", Type: wallet.LedgerEntryTypeCredit, Coins: 500, CreatedAt: now},
	}
	svc := NewService(repo, repo)

	out, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{UserID: "u1", Range: dayRange()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalDebitCoins != 250 {
		t.Fatalf("expected total debit 250, got %d", out.TotalDebitCoins)
	}
	if out.TotalCreditCoins != 1033 {
		t.Fatalf("expected total credit 1033, got %d", out.TotalCreditCoins)
	}
	if out.NetDeltaCoins != 783 {
		t.Fatalf("expected net 783, got %d", out.NetDeltaCoins)
	}
	if out.CallDebitCoins != 250 || out.CallCreditCoins != 8 || out.AdminAdjustCoins != 25 {
		t.Fatalf("unexpected categories: %+v", out)
	}
	if out.Entries != 5 || out.Truncated {
		t.Fatalf("unexpected entry count: %+v", out)
	}
}

func TestReporting_InvalidRequests(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, repo)
	ctx := context.Background()

	if _, err := svc.CallsSummary(ctx, CallsSummaryRequest{Range: dayRange()}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	backwards := TimeRange{From: now, To: now.Add(-time.Minute)}
	if _, err := svc.SpendSummary(ctx, SpendSummaryRequest{UserID: "u1", Range: backwards}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	empty := NewService(nil, nil)
	if _, err := empty.CallsSummary(ctx, CallsSummaryRequest{UserID: "u1", Range: dayRange()}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
