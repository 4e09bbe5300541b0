package pricing

import (
	"testing"

	"coincall-platform/internal/calls"
)

func TestBillableSeconds(t *testing.T) {
	// 60s increment, 0 min
	if got := billableSeconds(1, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(60, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(61, 0, 60); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}

	// min billable seconds
	if got := billableSeconds(5, 30, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(5, 30, 10); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
}

func TestBillableMinutesFromSeconds(t *testing.T) {
	if got := billableMinutesFromSeconds(1); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(60); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(61); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestEstimateCall_UsesRatePerCallType(t *testing.T) {
	svc := NewService(RateCard{})

	est, err := svc.EstimateCall(calls.CallTypeVideo, 125)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if est.BillableMinutes != 3 || est.TotalCoins != 120 {
		t.Fatalf("expected 3 minutes / 120 coins, got %+v", est)
	}

	est, err = svc.EstimateCall(calls.CallTypeVoice, 60)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if est.TotalCoins != 20 {
		t.Fatalf("expected 20 coins, got %d", est.TotalCoins)
	}
}

func TestEstimateCall_RejectsInvalid(t *testing.T) {
	svc := NewService(DefaultRateCard)
	if _, err := svc.EstimateCall("fax", 60); err != ErrInvalidEstimateReq {
		t.Fatalf("expected ErrInvalidEstimateReq, got %v", err)
	}
	if _, err := svc.EstimateCall(calls.CallTypeVoice, 0); err != ErrInvalidEstimateReq {
		t.Fatalf("expected ErrInvalidEstimateReq, got %v", err)
	}
}

func TestMinimumToStart(t *testing.T) {
	svc := NewService(RateCard{VoicePerMinute: 15, VideoPerMinute: 45})
	if got := svc.MinimumToStart(calls.CallTypeVideo); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	if got := svc.MinimumToStart(calls.CallTypeVoice); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestDeviation(t *testing.T) {
	svc := NewService(DefaultRateCard)
	tx := calls.Transaction{CallType: calls.CallTypeVideo, DurationSeconds: 90, BilledCoins: 100, Rates: calls.DefaultRates}

	delta, ok := svc.Deviation(tx)
	if !ok {
		t.Fatalf("expected comparison")
	}
	if delta != 20 {
		t.Fatalf("expected +20, got %d", delta)
	}

	if _, ok := svc.Deviation(calls.Transaction{CallType: calls.CallTypeVoice}); ok {
		t.Fatalf("expected no comparison without duration")
	}
}
